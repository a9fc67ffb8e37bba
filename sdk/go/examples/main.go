// Command examples 演示如何用 Go SDK 完成一次完整的浪涌分析：
// 在进程内启动模拟后端，提交分析、轮询状态、审批并查询预测。
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http/httptest"
	"time"

	"HealthForce-Goa/internal/api"
	"HealthForce-Goa/internal/surge"
	"HealthForce-Goa/pkg/logger"
	"HealthForce-Goa/sdk/go/healthforce"
)

func main() {
	logger.Discard()

	store := surge.NewMemoryStore()
	queue := surge.NewMemoryQueue(16)
	service := surge.NewService(store, queue, 3)
	defer service.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	processor := surge.NewProcessor(surge.NewSimulatedPipeline(50*time.Millisecond), store, queue, queue)
	go func() {
		if err := processor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			log.Printf("processor stopped: %v", err)
		}
	}()

	srv := httptest.NewServer(api.NewServer(service).Handler())
	defer srv.Close()

	client, err := healthforce.NewClient(srv.URL)
	if err != nil {
		log.Fatalf("create client: %v", err)
	}

	raw, err := client.RunSurge(ctx, healthforce.WithLocationZone("Panaji"))
	if err != nil {
		log.Fatalf("run surge: %v", err)
	}
	var run healthforce.SurgeRun
	if err := healthforce.Decode(raw, &run); err != nil {
		log.Fatalf("decode run: %v", err)
	}
	fmt.Println(run.Message, run.RunID)

	var status healthforce.SurgeStatus
	for !status.Done() {
		time.Sleep(100 * time.Millisecond)
		raw, err := client.GetSurgeStatus(ctx, run.RunID)
		if err != nil {
			log.Fatalf("status: %v", err)
		}
		if err := healthforce.Decode(raw, &status); err != nil {
			log.Fatalf("decode status: %v", err)
		}
		if status.Progress != nil {
			fmt.Println("  ", *status.Progress)
		}
	}

	raw, err = client.ApproveAction(ctx, run.RunID, true)
	if err != nil {
		log.Fatalf("approve: %v", err)
	}
	var approval healthforce.Approval
	if err := healthforce.Decode(raw, &approval); err != nil {
		log.Fatalf("decode approval: %v", err)
	}
	fmt.Println(approval.Message)

	raw, err = client.GetForecast(ctx, "Panaji")
	if err != nil {
		log.Fatalf("forecast: %v", err)
	}
	var forecast healthforce.Forecast
	if err := healthforce.Decode(raw, &forecast); err != nil {
		log.Fatalf("decode forecast: %v", err)
	}
	if forecast.Forecast != nil {
		fmt.Printf("forecast (%s): %d patients\n", forecast.Source, forecast.Forecast.PredictedPatients)
	}

	// 不存在的运行返回 404，错误信息取自 detail 字段。
	if _, err := client.GetSurgeStatus(ctx, "SURGE-00000000"); err != nil {
		if apiErr, ok := healthforce.AsError(err); ok {
			fmt.Printf("expected error: %d %s\n", apiErr.StatusCode, apiErr.Message)
		}
	}
}
