package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"google.golang.org/grpc/status"

	"finance-server-go/api/finance"
	"finance-server-go/config"
	"finance-server-go/market"
)

const usage = `usage: finance-client [flags] <command>

commands:
  list                  list supported tickers
  <ticker>              current price
  <ticker> <count>      several prices
  stats <ticker>        statistics over recorded history
  stream <ticker>       stream prices until interrupted
  random                price for a random ticker
`

func main() {
	cfgPath := flag.String("config", config.ResolvePath(), "配置文件路径")
	target := flag.String("target", "", "服务地址 host:port，默认取配置 client 段")
	timeout := flag.Duration("timeout", 5*time.Second, "单次请求超时")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage); flag.PrintDefaults() }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	addr := *target
	if addr == "" {
		cfg, err := config.LoadWithEnvOverrides(*cfgPath)
		if err != nil {
			log.Fatalf("加载配置失败: %v", err)
		}
		addr = cfg.Client.Addr()
	}

	client, conn, err := finance.Dial(addr)
	if err != nil {
		log.Fatalf("连接失败: %v", err)
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, client, args, *timeout); err != nil {
		if st, ok := status.FromError(err); ok {
			fmt.Fprintf(os.Stderr, "Error: %s\n", st.Message())
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		conn.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, client *finance.Client, args []string, timeout time.Duration) error {
	cmd := strings.ToLower(args[0])
	switch {
	case cmd == "list":
		rctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		resp, err := client.GetTickerList(rctx)
		if err != nil {
			return err
		}
		fmt.Println("Available tickers:")
		for _, t := range resp.Tickers {
			fmt.Println(t)
		}
		return nil

	case cmd == "stats" && len(args) == 2:
		rctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		resp, err := client.GetStats(rctx, args[1])
		if err != nil {
			return err
		}
		fmt.Println(resp.FormattedMessage)
		return nil

	case cmd == "stream" && len(args) == 2:
		return streamPrices(ctx, client, args[1])

	case cmd == "random":
		ticker, _ := market.RandomQuote(market.NewRandomSource())
		return printPrice(ctx, client, ticker, timeout)

	case len(args) == 1:
		return printPrice(ctx, client, args[0], timeout)

	case len(args) == 2:
		n, err := strconv.ParseInt(args[1], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid count %q", args[1])
		}
		rctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		resp, err := client.GetMultiplePrices(rctx, args[0], int32(n))
		if err != nil {
			return err
		}
		fmt.Println(resp.FormattedMessage)
		return nil
	}
	return fmt.Errorf("unknown command %q", strings.Join(args, " "))
}

func printPrice(ctx context.Context, client *finance.Client, ticker string, timeout time.Duration) error {
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	resp, err := client.GetPrice(rctx, ticker)
	if err != nil {
		return err
	}
	fmt.Print(resp.FormattedMessage)
	return nil
}

// streamPrices 打印推流直到 Ctrl-C，取消即结束会话。
func streamPrices(ctx context.Context, client *finance.Client, ticker string) error {
	stream, err := client.StreamPrices(ctx, ticker)
	if err != nil {
		return err
	}
	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) || ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Print(msg.FormattedMessage)
	}
}
