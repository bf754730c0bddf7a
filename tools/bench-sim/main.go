// Copyright 2026 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"

	"github.com/rditech/rdi-bench/sim"

	"github.com/sevlyar/go-daemon"
)

var (
	addr        = flag.String("addr", ":8000", "listen address")
	glitchEvery = flag.Int("glitch", 0, "report an implausible analyzer current every N snapshots")
	daemonize   = flag.Bool("d", false, "daemonize simulator")
)

func printUsage() {
	fmt.Fprintf(os.Stderr,
		`Usage: `+os.Args[0]+` [options]

Serves a simulated instrument backend: two power supplies, the power
analyzer and the Arduino sensor bridge.

options:
`,
	)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() != 0 {
		printUsage()
		log.Fatal("invalid arguments")
	}

	if *daemonize {
		ctxt := &daemon.Context{}
		d, err := ctxt.Reborn()
		if err != nil {
			log.Fatal("unable to daemonize simulator:", err)
		}
		if d != nil {
			return
		}
		defer ctxt.Release()
		log.Println("daemon started")
	}

	s := sim.New()
	s.GlitchEvery = *glitchEvery

	srv := &http.Server{Addr: *addr, Handler: s}
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt)
		<-c
		srv.Shutdown(context.Background())
	}()

	log.Println("simulator started on", *addr)
	if err := srv.ListenAndServe(); err != nil {
		log.Println("ListenAndServe: ", err)
	}

	log.Println("quitting nicely")
}
