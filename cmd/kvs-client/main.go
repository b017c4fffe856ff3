// Command kvs-client issues a single get, set, or rm request against a
// kvs-server over the length-framed binary protocol in internal/wire.
package main

import (
	"crypto/tls"
	"flag"
	"fmt"
	"net"
	"os"

	"github.com/kvlogd/kvs/internal/config"
	"github.com/kvlogd/kvs/internal/wire"
)

func main() {
	fs := flag.NewFlagSet("kvs-client", flag.ExitOnError)
	addr := fs.String("addr", "127.0.0.1:4000", "kvs-server address")
	tlsCert := fs.String("tls-cert", "", "optional TLS certificate file")
	tlsKey := fs.String("tls-key", "", "optional TLS key file")
	tlsCA := fs.String("tls-ca", "", "optional TLS CA file")

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	op := os.Args[1]
	// Flags may come before or after the positional KEY/VALUE arguments.
	var args []string
	rest := os.Args[2:]
	for {
		fs.Parse(rest)
		if fs.NArg() == 0 {
			break
		}
		args = append(args, fs.Arg(0))
		rest = fs.Args()[1:]
	}

	var req wire.Request
	switch op {
	case "get":
		if len(args) != 1 {
			usage()
			os.Exit(2)
		}
		req = wire.GetRequest(args[0])
	case "set":
		if len(args) != 2 {
			usage()
			os.Exit(2)
		}
		req = wire.SetRequest(args[0], args[1])
	case "rm":
		if len(args) != 1 {
			usage()
			os.Exit(2)
		}
		req = wire.RemoveRequest(args[0])
	default:
		usage()
		os.Exit(2)
	}

	cert, key, ca := config.ResolveTLSFiles(*tlsCert, *tlsKey, *tlsCA,
		config.ClientCertFile, config.ClientKeyFile, config.CAFile)

	conn, err := dial(*addr, cert, key, ca)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kvs-client: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	if err := wire.EncodeRequest(conn, req); err != nil {
		fmt.Fprintf(os.Stderr, "kvs-client: %v\n", err)
		os.Exit(1)
	}
	resp, err := wire.DecodeResponse(conn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kvs-client: %v\n", err)
		os.Exit(1)
	}
	if resp.IsError() {
		fmt.Fprintf(os.Stderr, "kvs-client: %s\n", resp.Err)
		os.Exit(1)
	}

	if op == "get" {
		if !resp.HasValue {
			fmt.Println("Key not found")
			return
		}
		fmt.Println(resp.Value)
	}
	// set/rm print nothing on success.
}

func dial(addr, certFile, keyFile, caFile string) (net.Conn, error) {
	if certFile == "" && caFile == "" {
		return net.Dial("tcp", addr)
	}
	tlsConfig, err := config.SetupTLSConfig(config.TLSConfig{
		CertFile:      certFile,
		KeyFile:       keyFile,
		CAFile:        caFile,
		ServerAddress: addr,
		Server:        false,
	})
	if err != nil {
		return nil, err
	}
	return tls.Dial("tcp", addr, tlsConfig)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: kvs-client {get KEY | set KEY VALUE | rm KEY} --addr ADDR")
}
