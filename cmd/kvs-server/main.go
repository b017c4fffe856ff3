// Command kvs-server listens for the length-framed binary protocol
// described in internal/wire and dispatches each connection onto a thread
// pool backed by either the segmented-log engine or the bbolt engine.
package main

import (
	"flag"
	"log"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/kvlogd/kvs/internal/adminhttp"
	"github.com/kvlogd/kvs/internal/config"
	"github.com/kvlogd/kvs/internal/engine"
	"github.com/kvlogd/kvs/internal/server"
	"github.com/kvlogd/kvs/internal/threadpool"
)

func main() {
	var (
		engineName = flag.String("engine", "kvs", "storage engine: kvs (segmented log) or bolt")
		dir        = flag.String("dir", config.DefaultStoreDir(), "directory to persist the store in")
		adminAddr  = flag.String("admin-addr", "127.0.0.1:8090", "address for the /healthz and /stats admin HTTP endpoints")
		pool       = flag.String("pool", "sharedqueue", "thread pool implementation: naive, sharedqueue, or delegated")
		poolSize   = flag.Int("pool-size", 8, "worker count for sharedqueue/delegated pools")
		tlsCert    = flag.String("tls-cert", "", "optional TLS certificate file")
		tlsKey     = flag.String("tls-key", "", "optional TLS key file")
		tlsCA      = flag.String("tls-ca", "", "optional TLS CA file")
	)
	flag.Parse()

	addr := "127.0.0.1:4000"
	if flag.NArg() > 0 {
		addr = flag.Arg(0)
		// flags may also follow ADDR
		flag.CommandLine.Parse(flag.Args()[1:])
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("kvs-server: building logger: %v", err)
	}
	defer logger.Sync()

	if err := os.MkdirAll(*dir, 0o755); err != nil {
		logger.Fatal("creating store directory", zap.Error(err))
	}

	var eng engine.Engine
	var statsFn adminhttp.StatsFunc
	switch *engineName {
	case "kvs":
		kv, err := engine.Open(*dir, engine.Config{}, logger)
		if err != nil {
			logger.Fatal("opening kvs engine", zap.Error(err))
		}
		eng = kv
		statsFn = func() adminhttp.Stats {
			return adminhttp.Stats{
				Engine:       "kvs",
				SizeBytes:    kv.SizeBytes(),
				SegmentCount: kv.SegmentCount(),
			}
		}
	case "bolt":
		bolt, err := engine.OpenBolt(*dir)
		if err != nil {
			logger.Fatal("opening bolt engine", zap.Error(err))
		}
		eng = bolt
		statsFn = func() adminhttp.Stats {
			return adminhttp.Stats{
				Engine:    "bolt",
				SizeBytes: bolt.SizeBytes(),
			}
		}
	default:
		logger.Fatal("unknown --engine value", zap.String("engine", *engineName))
	}
	defer eng.Close()

	var pl threadpool.ThreadPool
	switch *pool {
	case "naive":
		pl = threadpool.NewNaive(*poolSize, logger)
	case "sharedqueue":
		pl = threadpool.NewSharedQueue(*poolSize, logger)
	case "delegated":
		pl = threadpool.NewDelegated(*poolSize, logger)
	default:
		logger.Fatal("unknown --pool value", zap.String("pool", *pool))
	}
	defer pl.Close()

	cert, key, ca := config.ResolveTLSFiles(*tlsCert, *tlsKey, *tlsCA,
		config.ServerCertFile, config.ServerKeyFile, config.CAFile)
	srvCfg := server.Config{Engine: eng, Pool: pl, Logger: logger}
	if cert != "" || ca != "" {
		tc, err := config.SetupTLSConfig(config.TLSConfig{CertFile: cert, KeyFile: key, CAFile: ca, Server: true})
		if err != nil {
			logger.Fatal("building TLS config", zap.Error(err))
		}
		srvCfg.TLSConfig = tc
	}

	srv, err := server.New(addr, srvCfg)
	if err != nil {
		logger.Fatal("binding listener", zap.Error(err))
	}
	logger.Info("kvs-server listening", zap.String("addr", srv.Addr().String()), zap.String("engine", *engineName))

	admin := adminhttp.New(*adminAddr, statsFn)
	go func() {
		logger.Info("admin http listening", zap.String("addr", *adminAddr))
		if err := admin.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin http server stopped", zap.Error(err))
		}
	}()

	if err := srv.Serve(); err != nil {
		logger.Fatal("serve", zap.Error(err))
	}
}
