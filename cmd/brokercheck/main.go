package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/park285/cheese-wargame/internal/appbuilder"
	"github.com/park285/cheese-wargame/internal/broker"
	appcfg "github.com/park285/cheese-wargame/internal/config"
	"github.com/park285/cheese-wargame/internal/domain"
)

func main() {
	post := flag.Bool("post", false, "post a probe record before fetching")
	turn := flag.Int("turn", 1, "turn index of the probe record")
	from := flag.String("from", "6,4", "probe source cell as row,col")
	to := flag.String("to", "4,4", "probe destination cell as row,col")
	flag.Parse()

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if !cfg.BrokerEnabled() {
		log.Fatal("BROKER_URL is required")
	}
	relay, err := appbuilder.NewRelay(cfg)
	if err != nil {
		log.Fatalf("relay init error: %v", err)
	}
	if c, ok := relay.(io.Closer); ok {
		defer c.Close()
	}
	timeout := time.Duration(cfg.BrokerTimeoutMS) * time.Millisecond

	if *post {
		m, err := parseMove(*from, *to)
		if err != nil {
			log.Fatalf("probe move: %v", err)
		}
		rec := domain.NewTurnRecord(*turn, m)
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		err = relay.Post(ctx, rec)
		cancel()
		if err != nil {
			log.Printf("post error: %v", err)
		} else {
			log.Printf("post ok: turn=%d move=%s", rec.Turn, m)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	raw, err := relay.Fetch(ctx)
	if err != nil {
		log.Fatalf("fetch error: %v", err)
	}
	rec, err := broker.DecodeRecord(raw)
	if err != nil {
		log.Printf("fetch ok, no usable record (%v): %s", err, string(raw))
		return
	}
	fmt.Printf("latest record: turn=%d move=%s\n", rec.Turn, rec.Move())
}

func parseMove(from, to string) (domain.Move, error) {
	f, err := parseCell(from)
	if err != nil {
		return domain.Move{}, err
	}
	t, err := parseCell(to)
	if err != nil {
		return domain.Move{}, err
	}
	return domain.Move{From: f, To: t}, nil
}

func parseCell(s string) (domain.Coordinate, error) {
	var c domain.Coordinate
	if _, err := fmt.Sscanf(s, "%d,%d", &c.Row, &c.Col); err != nil {
		return c, fmt.Errorf("cell %q: %w", s, err)
	}
	if !c.Valid() {
		return c, fmt.Errorf("cell %q is negative", s)
	}
	return c, nil
}
