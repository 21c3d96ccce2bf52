package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/auditlens/auditlens-backend/internal/app"
)

func main() {
	a, err := app.New()
	if err != nil {
		panic(err)
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.Close(ctx)
		os.Exit(0)
	}()

	if err := a.Start(); err != nil {
		a.Log.Fatal("server exited", "error", err)
	}
}
