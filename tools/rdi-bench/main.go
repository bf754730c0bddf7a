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
	"runtime/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/rditech/rdi-bench/backend"
	"github.com/rditech/rdi-bench/live"
	"github.com/rditech/rdi-bench/live/handlers/charts"
	"github.com/rditech/rdi-bench/live/handlers/client"
	"github.com/rditech/rdi-bench/live/handlers/control"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis"
	"github.com/gorilla/mux"
	"github.com/skratchdot/open-golang/open"
)

var (
	openBrowser = flag.Bool("b", false, "open a browser window and connect to server")
	configFile  = flag.String("config", "", "yaml file with backend, polling and chart settings")
	cpuProfile  = flag.String("cpuprofile", "", "output file for cpu profiling")
)

func printUsage() {
	fmt.Fprintf(os.Stderr,
		`Usage: `+os.Args[0]+` [options]

Serves the bench dashboard. The backend is polled for snapshots and the
charts and PSU controls are published to browser clients.

options:
`,
	)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = printUsage
	flag.Parse()

	cfg := live.DefaultConfig()
	if *configFile != "" {
		var err error
		cfg, err = live.LoadConfig(*configFile)
		if err != nil {
			log.Fatalf("unable to load config: %v\n", err)
		}
	}
	if url := os.Getenv("BENCH_BACKEND"); len(url) > 0 {
		cfg.Backend = url
	}
	if port := os.Getenv("PORT"); len(port) > 0 {
		cfg.Port = port
	}
	if addr := os.Getenv("REDIS_ADDR"); len(addr) > 0 {
		cfg.RedisAddr = addr
	}

	// Define redis connection
	redisAddr := cfg.RedisAddr
	if len(redisAddr) == 0 {
		s, err := miniredis.Run()
		if err != nil {
			log.Fatalln("unable to start miniredis server:", err)
		}
		defer s.Close()
		redisAddr = s.Addr()
	}
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer redisClient.Close()
	ping := redisClient.Ping()
	if ping.Err() != nil {
		log.Fatalf("unable to ping redis server: %v\n", ping.Err())
	} else {
		log.Printf("successfully connected to redis server at %v with status %v\n", redisAddr, ping.String())
	}

	// Build the dashboard
	dashboard, err := live.NewDashboard(cfg, backend.NewClient(cfg.Backend), redisClient, redisAddr)
	if err != nil {
		log.Fatalf("unable to build dashboard: %v\n", err)
	}
	log.Println("polling backend at", cfg.Backend)

	// Define handlers
	clientHandler := &client.ClientHandler{Namespace: dashboard.Namespace, Redis: redisClient, Addr: redisAddr}
	clientHandler.MaxNPR = float64(100)
	if len(os.Getenv("MAX_NPR")) > 0 {
		if max, err := strconv.ParseFloat(os.Getenv("MAX_NPR"), 64); err == nil {
			clientHandler.MaxNPR = max
		}
	}
	clientHandler.EnableCompression = true
	webdataHandler := live.WebdataHandler("/webdata/")
	rootHandler := live.WebdataHandler("/")

	// Define http server and routes
	port := cfg.Port
	if len(port) == 0 {
		port = "8080"
	}
	router := mux.NewRouter()
	router.Handle("/client", clientHandler)
	(&charts.ChartHandler{Dashboard: dashboard}).Register(router)
	(&control.ControlHandler{Dashboard: dashboard}).Register(router)
	router.PathPrefix("/webdata/").Handler(webdataHandler)
	router.PathPrefix("/").Handler(rootHandler)

	srv := &http.Server{Addr: ":" + port, Handler: router}
	switch strings.ToLower(os.Getenv("SECURE_ONLY")) {
	case "true", "on":
		log.Println("Enabling HTTP proxy securing middleware")
		srv = &http.Server{Addr: ":" + port, Handler: Secure(router)}
	}

	// Turn on cpu profiling if output file is specified
	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal("could not create cpu profile file: ", err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	ctx, cancel := context.WithCancel(context.Background())
	managed := make(chan struct{})
	go func() {
		defer close(managed)
		dashboard.Manage(ctx)
	}()

	// Set up interrupt for nice quitting
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt)
		<-c
		srv.Shutdown(context.Background())
	}()

	// Open a browser window if flag is set
	if *openBrowser {
		// Instruct the clientHandler to shutdown the server when clients all
		// disconnect
		clientHandler.Srv = srv
		go func() {
			time.Sleep(10 * time.Millisecond)
			open.Run("http://localhost:" + port)
		}()
	}

	// Launch HTTP server
	log.Println("http server started on :" + port)
	if err := srv.ListenAndServe(); err != nil {
		log.Println("ListenAndServe: ", err)
	}

	cancel()
	<-managed
	log.Println("successful quit")
}

// Middleware for redirecting http requests that are behind an HTTP proxy to
// https
func Secure(next http.Handler) http.Handler {
	return http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			if strings.ToLower(r.Header.Get("x-forwarded-proto")) == "http" {
				target := "https://" + r.Host + r.URL.Path
				if len(r.URL.RawQuery) > 0 {
					target += "?" + r.URL.RawQuery
				}
				log.Printf("redirect to: %s", target)
				http.Redirect(w, r, target,
					http.StatusTemporaryRedirect)
				return
			}

			next.ServeHTTP(w, r)
		},
	)
}
