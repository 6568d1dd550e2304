package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"

	"github.com/lk2023060901/chat-harbor-go/application"
	"github.com/lk2023060901/chat-harbor-go/pkg/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.New().Run(ctx); err != nil {
		log.Error("chat server exited with error", zap.Error(err))
		fmt.Fprintln(os.Stderr, "chat server exited:", err)
		os.Exit(1)
	}
}
