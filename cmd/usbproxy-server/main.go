// Command usbproxy-server accepts RPC connections from usbproxy-client and
// dispatches them into the real USB backend, per spec §6's server CLI
// contract: a bind-scope flag and a help flag.
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/vavrusa/usbproxy/internal/adminapi"
	"github.com/vavrusa/usbproxy/internal/config"
	"github.com/vavrusa/usbproxy/internal/session"
)

var (
	allInterfaces = flag.Bool("all-interfaces", false, "bind the RPC listener to all interfaces instead of localhost")
	port          = flag.String("port", "", "RPC listener port (overrides USBPROXY_PORT)")
	adminAddr     = flag.String("admin-addr", "", "admin HTTP listen address, empty disables it (overrides USBPROXY_ADMIN_ADDR)")
)

func main() {
	flag.Usage = usage
	flag.Parse()

	cfg, err := config.LoadProxyConfig()
	if err != nil {
		log.Fatalf("usbproxy-server: load config: %v", err)
	}
	if *port != "" {
		cfg.Port = *port
	}
	if *adminAddr != "" {
		cfg.AdminAddr = *adminAddr
	}

	bindHost := "127.0.0.1"
	if *allInterfaces {
		bindHost = "0.0.0.0"
	}
	addr := net.JoinHostPort(bindHost, cfg.Port)

	backend := session.NewGousbBackend()
	defer backend.Close()
	if err := backend.Init(); err != nil {
		log.Fatalf("usbproxy-server: init USB backend: %v", err)
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("usbproxy-server: listen on %s: %v", addr, err)
	}

	srv := session.NewServer(listener, backend)
	log.Printf("usbproxy-server: listening on %s", addr)

	if cfg.AdminAddr != "" {
		router := adminapi.NewRouter(srv)
		go func() {
			if err := http.ListenAndServe(cfg.AdminAddr, router); err != nil {
				log.Printf("usbproxy-server: admin surface stopped: %v", err)
			}
		}()
		log.Printf("usbproxy-server: admin surface on %s", cfg.AdminAddr)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("usbproxy-server: shutting down")
		srv.Close()
	}()

	if err := srv.Serve(); err != nil {
		log.Printf("usbproxy-server: serve loop exited: %v", err)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: usbproxy-server [flags]\n\n")
	flag.PrintDefaults()
}
