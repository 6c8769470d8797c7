package redis

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
)

type commandHook struct {
	obs CommandObserver
}

func (h commandHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		start := time.Now()
		conn, err := next(ctx, network, addr)
		h.obs.ObserveCommand("dial", time.Since(start), err)
		return conn, err
	}
}

func (h commandHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		h.obs.ObserveCommand(cmd.Name(), time.Since(start), missIsNotFailure(err))
		return err
	}
}

func (h commandHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		h.obs.ObserveCommand("pipeline", time.Since(start), missIsNotFailure(err))
		return err
	}
}

func missIsNotFailure(err error) error {
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}
