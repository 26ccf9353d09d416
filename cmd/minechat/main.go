package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/danmuck/minechat/internal/logging"
)

type cli struct {
	Globals globals `embed:""`

	Listen     listenCmd     `cmd:"" help:"Stream chat messages to stdout."`
	Send       sendCmd       `cmd:"" help:"Publish one message to the chat."`
	Register   registerCmd   `cmd:"" help:"Create a new account and store its token."`
	InitConfig initConfigCmd `cmd:"" name:"init-config" help:"Write a default settings file."`
}

func main() {
	var c cli
	kctx := kong.Parse(&c,
		kong.Name("minechat"),
		kong.Description("Client for the underground minechat TCP chat."),
		kong.UsageOnError(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	kctx.BindTo(ctx, (*context.Context)(nil))
	err := kctx.Run(&c.Globals)
	stop()
	_ = logging.Close()

	code, msg := exitStatus(err)
	if msg != "" {
		fmt.Fprintf(os.Stderr, "minechat: %s\n", msg)
	}
	os.Exit(code)
}
