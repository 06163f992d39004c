package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pzhenzhou/respcli/pkg/client"
	"github.com/pzhenzhou/respcli/pkg/common"
	"github.com/pzhenzhou/respcli/pkg/respio"
	"github.com/samber/lo"
)

type DoCmd struct {
	common.ClientConfig `embed:""`
	Command             []string `arg:"" name:"command" help:"Command name followed by its arguments."`
}

func (d *DoCmd) Validate() error {
	return d.ClientConfig.Validate()
}

func (d *DoCmd) Run(ctx context.Context) error {
	conn, err := client.Dial(ctx, d.Addr, client.WithDialTimeout(d.DialTimeout))
	if err != nil {
		return fmt.Errorf("connect %s: %w", d.Addr, err)
	}
	defer conn.Close()
	return execute(ctx, os.Stdout, conn, &d.ClientConfig, d.Command)
}

// execute runs one command and prints the reply. Server errors are printed
// like replies and returned so the caller can exit non-zero.
func execute(ctx context.Context, out io.Writer, conn *client.Conn, cfg *common.ClientConfig, words []string) error {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	args := lo.Map(words[1:], func(w string, _ int) any { return w })
	reply, err := conn.Do(ctx, words[0], args...)
	var srvErr *respio.ServerError
	if errors.As(err, &srvErr) {
		_, _ = fmt.Fprintln(out, respio.ErrorReply(srvErr.Message))
		return srvErr
	}
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, reply)
	return nil
}

type ReplCmd struct {
	common.ClientConfig `embed:""`
}

func (r *ReplCmd) Validate() error {
	return r.ClientConfig.Validate()
}

func (r *ReplCmd) Run(ctx context.Context) error {
	return r.loop(ctx, os.Stdin, os.Stdout)
}

func (r *ReplCmd) dial(ctx context.Context) (*client.Conn, error) {
	return client.Dial(ctx, r.Addr, client.WithDialTimeout(r.DialTimeout))
}

func (r *ReplCmd) loop(ctx context.Context, in io.Reader, out io.Writer) error {
	conn, err := r.dial(ctx)
	if err != nil {
		return fmt.Errorf("connect %s: %w", r.Addr, err)
	}
	defer func() {
		_ = conn.Close()
	}()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*common.KB), respio.MaxBulkSize)
	prompt := r.Addr + "> "
	for {
		_, _ = fmt.Fprint(out, prompt)
		if !scanner.Scan() {
			_, _ = fmt.Fprintln(out)
			return scanner.Err()
		}
		words, err := splitArgs(scanner.Text())
		if err != nil {
			_, _ = fmt.Fprintf(out, "(error) %v\n", err)
			continue
		}
		if len(words) == 0 {
			continue
		}
		// A bare quit or exit leaves the prompt, QUIT with arguments goes to the server.
		if name := strings.ToLower(words[0]); len(words) == 1 && (name == "quit" || name == "exit") {
			return nil
		}
		if checkErr := conn.Check(); checkErr != nil {
			logger.Info("Connection lost, reconnecting", "addr", r.Addr, "reason", checkErr)
			if conn, err = r.dial(ctx); err != nil {
				return fmt.Errorf("reconnect %s: %w", r.Addr, err)
			}
		}
		if err := execute(ctx, out, conn, &r.ClientConfig, words); err != nil && !respio.IsServerError(err) {
			_, _ = fmt.Fprintf(out, "(error) %v\n", err)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
}
