// Command examples connects the bridge to an exchange and prints every
// message pushed to the platform bus. It doubles as a smoke test for a new
// deployment: point it at a config file, watch ticks arrive.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/veiloq/exchange-bridge/pkg/config"
	"github.com/veiloq/exchange-bridge/pkg/exchanges/bitfinex"
	"github.com/veiloq/exchange-bridge/pkg/logging"
	"github.com/veiloq/exchange-bridge/pkg/platform"
	"github.com/veiloq/exchange-bridge/pkg/subscription"
)

// printBus writes every platform message to the logger.
type printBus struct {
	log logging.Logger
}

func (b *printBus) Push(msg platform.Message) {
	b.log.Info("bus message",
		logging.String("kind", fmt.Sprintf("%v", msg.Kind())),
		logging.String("payload", fmt.Sprintf("%+v", msg)),
	)
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the bridge configuration file")
	symbol := flag.String("symbol", "tBTCUSD", "instrument to subscribe to")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logOpts := []logging.ZapOption{logging.WithLogLevel(logging.ParseLevel(cfg.Logging.Level))}
	if cfg.Logging.Development {
		logOpts = append(logOpts, logging.WithDevelopmentMode())
	}
	logger := logging.NewZapLogger(logOpts...)

	bus := &printBus{log: logger}

	var opts []bitfinex.Option
	if cfg.Exchange.RESTEndpoint != "" && cfg.Exchange.WSEndpoint != "" {
		opts = append(opts, bitfinex.WithEndpoints(cfg.Exchange.RESTEndpoint, cfg.Exchange.WSEndpoint))
	}
	vendor := bitfinex.NewVendor(bus, logger, opts...)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := vendor.Connect(ctx, cfg.Settings()); err != nil {
		logger.Error("connect failed", logging.Error(err))
		os.Exit(1)
	}
	defer vendor.Disconnect()

	if err := vendor.SubscribeSymbol(*symbol, subscription.KindQuote); err != nil {
		logger.Error("subscribe failed", logging.Error(err))
		os.Exit(1)
	}
	if err := vendor.SubscribeSymbol(*symbol, subscription.KindTrade); err != nil {
		logger.Error("subscribe failed", logging.Error(err))
	}

	logger.Info("running, ctrl-c to stop", logging.String("symbol", *symbol))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
}
