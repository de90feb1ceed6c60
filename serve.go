package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"character_asset_compiler/server"
)

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the JSON API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server_addr)")
	return cmd
}

func runServe(addr string) error {
	a, err := loadApp(nil)
	if err != nil {
		return err
	}
	defer a.close()
	store, err := a.openDrafts()
	if err != nil {
		return err
	}

	srv, err := server.New(a.controller,
		server.WithDrafts(store),
		server.WithPublisher(a.publisher),
		server.WithLogger(a.log),
	)
	if err != nil {
		return err
	}
	listen := a.cfg.ServerAddr
	if addr != "" {
		listen = addr
	}

	httpSrv := &http.Server{
		Addr:              listen,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	ctx, stop := signalContext()
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	a.log.Info("starting web server", "addr", listen)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
