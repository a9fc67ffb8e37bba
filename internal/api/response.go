package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	xerrors "HealthForce-Goa/internal/errors"
	"HealthForce-Goa/pkg/logger"
)

const maxBodyBytes = 1 << 20

type detailBody struct {
	Detail any `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.L().Error("写入响应失败", slog.Any("error", err))
	}
}

func writeDetail(w http.ResponseWriter, status int, detail any) {
	writeJSON(w, status, detailBody{Detail: detail})
}

// decodeBody 解析 JSON 请求体，失败时写入 422 并返回 false。
func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "无法读取请求体")
		return false
	}
	if len(data) == 0 {
		data = []byte("{}")
	}
	if err := json.Unmarshal(data, out); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, fmt.Sprintf("请求体格式错误: %v", err))
		return false
	}
	return true
}

// writeError 按错误码注册的状态码写出 {"detail": ...}，5xx 记录日志且不暴露内部原因。
func writeError(w http.ResponseWriter, err error) {
	status := xerrors.StatusOf(err)
	detail := "Internal Server Error"
	if e, ok := xerrors.From(err); ok && status != http.StatusInternalServerError {
		detail = e.Message()
	}
	if status >= http.StatusInternalServerError {
		logger.L().Log(context.Background(), xerrors.SeverityOf(err).Level(), "请求处理失败",
			slog.Any("error", err), slog.Int("status", status))
	}
	writeDetail(w, status, detail)
}
