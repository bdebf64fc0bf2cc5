package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"github.com/hokaido/hokaido/internal/broadcaster"
	"github.com/hokaido/hokaido/internal/config"
	"github.com/hokaido/hokaido/internal/logging"
	"github.com/hokaido/hokaido/internal/server"
	"github.com/hokaido/hokaido/internal/watcher"
)

var version = "0.1.0"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "hokaido",
	Short:   "Terminal sharing over named channels",
	Version: version,
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the rendezvous server",
	RunE:  runServer,
}

var broadcastCmd = &cobra.Command{
	Use:   "broadcast",
	Short: "Share a shell session as a broadcaster",
	RunE:  runBroadcast,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch a broadcaster's output",
	RunE:  runWatch,
}

var (
	upnp    bool
	verbose bool
	shell   string
	qr      bool
)

func init() {
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(broadcastCmd)
	rootCmd.AddCommand(watchCmd)

	for _, cmd := range []*cobra.Command{serverCmd, broadcastCmd, watchCmd} {
		cmd.Flags().String("host", "0.0.0.0", "server host")
		cmd.Flags().Int("port", 4423, "server port")
		cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose (development) logging")
	}
	broadcastCmd.Flags().String("channel", "default", "channel to broadcast on")
	watchCmd.Flags().String("channel", "default", "channel to watch")

	serverCmd.Flags().BoolVar(&upnp, "upnp", false, "attempt a UPnP NAT port mapping")
	broadcastCmd.Flags().StringVar(&shell, "shell", "", "shell to run (default: $HOKAIDO_SHELL, $SHELL, or bash)")
	broadcastCmd.Flags().BoolVar(&qr, "qr", false, "print a QR code encoding the connection")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}

	logging.Configure(verbose)
	log := logging.WithComponent("server")
	defer logging.Sync()

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	defer ln.Close()

	log.Infow("listening", "addr", ln.Addr().String())

	if upnp {
		tcpAddr, ok := ln.Addr().(*net.TCPAddr)
		if ok {
			if externalIP, mapped, err := server.TryMapPort(uint16(tcpAddr.Port), cfg.Host, "hokaido"); err != nil {
				log.Infow("upnp port mapping failed", "err", err)
			} else if mapped {
				log.Infow("upnp port mapping established", "external_ip", externalIP, "port", tcpAddr.Port)
			}
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Infow("shutting down")
		ln.Close()
	}()

	if err := server.Serve(ln, log); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return nil
		}
		return err
	}
	return nil
}

func runBroadcast(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}

	logging.Configure(verbose)
	log := logging.WithComponent("broadcaster")
	defer logging.Sync()

	if qr {
		printQR(cfg)
	}

	return broadcaster.Run(cfg.Addr(), cfg.Channel, cfg.Shell, log)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}

	logging.Configure(verbose)
	log := logging.WithComponent("watcher")
	defer logging.Sync()

	return watcher.Run(cfg.Addr(), cfg.Channel, log)
}

func printQR(cfg config.Config) {
	target := fmt.Sprintf("hokaido://%s/%s", cfg.Addr(), cfg.Channel)
	code, err := qrcode.New(target, qrcode.Medium)
	if err != nil {
		return
	}
	fmt.Println(code.ToSmallString(false))
	fmt.Printf("  %s\n\n", target)
}

