// Command ozone-repl is operator tooling around datanode container
// replication: fetch one container replica from a peer, serve local
// replicas to peers, and inspect the ledger of past attempts.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/Reidddddd/ozone/config"
	"github.com/Reidddddd/ozone/container"
	"github.com/Reidddddd/ozone/container/replication"
	"github.com/Reidddddd/ozone/logging"
)

const usage = `usage: ozone-repl <command> [flags]

commands:
  fetch    download one container replica from a peer
  serve    serve local replicas to peers
  ledger   print recorded replication attempts

Every command takes -config <path>; without it ozone-repl.yaml is
searched for in the working directory and under $HOME/.ozone.
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out, errOut io.Writer) int {
	if len(args) < 1 {
		fmt.Fprint(errOut, usage)
		return 2
	}
	switch args[0] {
	case "fetch":
		return runFetch(args[1:], out, errOut)
	case "serve":
		return runServe(args[1:], out, errOut)
	case "ledger":
		return runLedger(args[1:], out, errOut)
	case "help", "-h", "-help", "--help":
		fmt.Fprint(out, usage)
		return 0
	default:
		fmt.Fprintf(errOut, "ozone-repl: unknown command %q\n", args[0])
		fmt.Fprint(errOut, usage)
		return 2
	}
}

// countingSink tracks how many replica bytes reached the wrapped sink, for
// the attempt ledger.
type countingSink struct {
	io.WriteCloser
	n int64
}

func (c *countingSink) Write(p []byte) (int, error) {
	n, err := c.WriteCloser.Write(p)
	c.n += int64(n)
	return n, err
}

func runFetch(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var (
		configPath    = fs.String("config", "", "configuration file")
		containerID   = fs.Uint64("container", 0, "container ID to download (required)")
		peer          = fs.String("peer", "", "peer address host:port (overrides configuration)")
		compress      = fs.Bool("lz4", false, "store the replica lz4 compressed")
		allowTestCert = fs.Bool("allow-test-cert", false, "permit the localhost test certificate override")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *containerID == 0 {
		fmt.Fprintln(errOut, "ozone-repl: fetch requires -container")
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(errOut, "ozone-repl: %v\n", err)
		return 1
	}
	logging.Init(cfg.Log.Level, cfg.Log.Format)

	host, port := cfg.Peer.Host, cfg.Peer.Port
	if *peer != "" {
		h, p, err := splitPeer(*peer)
		if err != nil {
			fmt.Fprintf(errOut, "ozone-repl: %v\n", err)
			return 2
		}
		host, port = h, p
	}

	sec := cfg.SecurityConfig()
	if sec.UseTestCert && !*allowTestCert {
		fmt.Fprintln(errOut, "ozone-repl: security.use_test_cert is set; pass -allow-test-cert to confirm this is not a production node")
		return 2
	}
	anchor, err := cfg.TrustAnchor()
	if err != nil {
		fmt.Fprintf(errOut, "ozone-repl: %v\n", err)
		return 1
	}

	if err := os.MkdirAll(cfg.WorkingDir, 0o755); err != nil {
		fmt.Fprintf(errOut, "ozone-repl: create working directory: %v\n", err)
		return 1
	}

	client, err := replication.NewClient(host, port, cfg.WorkingDir, sec, anchor, replication.Options{
		MaxMessageSize: cfg.MaxMessageSize,
		GracePeriod:    cfg.ShutdownGrace,
	})
	if err != nil {
		fmt.Fprintf(errOut, "ozone-repl: %v\n", err)
		return 1
	}
	defer client.Close()

	ledger, err := container.OpenLedger(cfg.LedgerDir)
	if err != nil {
		fmt.Fprintf(errOut, "ozone-repl: %v\n", err)
		return 1
	}
	defer ledger.Close()

	cd := container.ContainerData{ID: *containerID, OriginNodeID: client.Target()}
	rec := container.NewAttempt(cd.ID, client.Target())

	name := replication.ContainerFileName(cd.ID)
	if *compress {
		name += ".lz4"
	}
	fileSink, err := replication.NewFileSink(filepath.Join(cfg.WorkingDir, name))
	if err != nil {
		fmt.Fprintf(errOut, "ozone-repl: %v\n", err)
		return 1
	}
	var sink io.WriteCloser = fileSink
	if *compress {
		sink = replication.NewLZ4Sink(fileSink)
	}
	counted := &countingSink{WriteCloser: sink}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dlErr := client.Download(ctx, cd, counted)
	rec.FinishedAt = time.Now().UTC()
	rec.BytesReceived = counted.n

	if dlErr == nil {
		dlErr = fileSink.Commit()
	}
	if dlErr != nil {
		rec.State = container.AttemptFailed
		rec.Error = dlErr.Error()
		if err := fileSink.Discard(); err != nil {
			logrus.WithError(err).Warn("could not discard staging file")
		}
		if err := ledger.Record(rec); err != nil {
			logrus.WithError(err).Warn("could not record failed attempt")
		}
		fmt.Fprintf(errOut, "ozone-repl: download failed: %v\n", dlErr)
		return 1
	}

	rec.State = container.AttemptComplete
	rec.Path = fileSink.Path()
	if err := ledger.Record(rec); err != nil {
		logrus.WithError(err).Warn("could not record completed attempt")
	}
	fmt.Fprintf(out, "downloaded container %d to %s (%d bytes)\n", cd.ID, fileSink.Path(), counted.n)
	return 0
}

func runServe(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var (
		configPath = fs.String("config", "", "configuration file")
		listen     = fs.String("listen", ":9859", "listen address")
		dir        = fs.String("dir", "", "directory of replicas to serve (default: working directory)")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(errOut, "ozone-repl: %v\n", err)
		return 1
	}
	logging.Init(cfg.Log.Level, cfg.Log.Format)

	serveDir := *dir
	if serveDir == "" {
		serveDir = cfg.WorkingDir
	}
	source, err := replication.NewDirectorySource(serveDir)
	if err != nil {
		fmt.Fprintf(errOut, "ozone-repl: %v\n", err)
		return 1
	}

	var serverOpts []grpc.ServerOption
	sec := cfg.SecurityConfig()
	if sec.Enabled {
		if err := sec.Validate(); err != nil {
			fmt.Fprintf(errOut, "ozone-repl: %v\n", err)
			return 1
		}
		anchor, err := cfg.TrustAnchor()
		if err != nil {
			fmt.Fprintf(errOut, "ozone-repl: %v\n", err)
			return 1
		}
		tlsConf, err := sec.ServerTLSConfig(anchor)
		if err != nil {
			fmt.Fprintf(errOut, "ozone-repl: %v\n", err)
			return 1
		}
		serverOpts = append(serverOpts, grpc.Creds(credentials.NewTLS(tlsConf)))
	}

	srv := grpc.NewServer(serverOpts...)
	replication.RegisterIntraDatanodeServer(srv, &replication.Server{
		Source:    source,
		ChunkSize: cfg.ChunkSize,
	})

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		fmt.Fprintf(errOut, "ozone-repl: listen: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()

	logrus.WithFields(logrus.Fields{
		"addr":   lis.Addr().String(),
		"dir":    serveDir,
		"secure": sec.Enabled,
	}).Info("serving container replicas")
	if err := srv.Serve(lis); err != nil {
		fmt.Fprintf(errOut, "ozone-repl: serve: %v\n", err)
		return 1
	}
	return 0
}

func runLedger(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("ledger", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var (
		configPath  = fs.String("config", "", "configuration file")
		containerID = fs.Uint64("container", 0, "show only this container")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(errOut, "ozone-repl: %v\n", err)
		return 1
	}
	logging.Init(cfg.Log.Level, cfg.Log.Format)

	ledger, err := container.OpenLedger(cfg.LedgerDir)
	if err != nil {
		fmt.Fprintf(errOut, "ozone-repl: %v\n", err)
		return 1
	}
	defer ledger.Close()

	var recs []container.AttemptRecord
	if *containerID != 0 {
		rec, err := ledger.Get(*containerID)
		if err != nil {
			fmt.Fprintf(errOut, "ozone-repl: %v\n", err)
			return 1
		}
		recs = []container.AttemptRecord{rec}
	} else {
		recs, err = ledger.List()
		if err != nil {
			fmt.Fprintf(errOut, "ozone-repl: %v\n", err)
			return 1
		}
	}

	for _, rec := range recs {
		printAttempt(out, rec)
	}
	return 0
}

func printAttempt(out io.Writer, rec container.AttemptRecord) {
	line := fmt.Sprintf("container %d  %-8s  %d bytes  peer %s  at %s",
		rec.ContainerID, rec.State, rec.BytesReceived, rec.Peer,
		rec.FinishedAt.Format(time.RFC3339))
	if rec.Error != "" {
		line += "  error: " + rec.Error
	}
	fmt.Fprintln(out, line)
}

func splitPeer(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("peer address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("peer address %q: bad port: %w", addr, err)
	}
	return host, port, nil
}
