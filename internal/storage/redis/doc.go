// Package redis builds go-redis clients from configuration. The surge run
// queue is its main consumer.
package redis
