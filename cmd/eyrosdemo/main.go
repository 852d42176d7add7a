package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"eyros/pkg/config"
	"eyros/pkg/db"
	"eyros/pkg/point"
	"eyros/pkg/rows"
	"eyros/pkg/storage"
	"eyros/pkg/value"
)

type pt = point.Point2[float64, float64]
type bd = point.Bounds2[float64, float64]

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dataDir := flag.String("data-dir", "./eyros-data", "directory holding the database's files")
	configPath := flag.String("config", "", "optional YAML config path (defaults to built-in options)")
	flag.Parse()

	opts := config.Default()
	if *configPath != "" {
		var err error
		opts, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("eyrosdemo: load config: %v", err)
		}
	}

	factory := storage.DiskFactory(*dataDir)
	database, err := db.Open[pt, bd](factory, point.DecodePoint2[float64, float64], opts)
	if err != nil {
		log.Fatalf("eyrosdemo: open database at %s: %v", *dataDir, err)
	}

	fmt.Printf("eyros demo starting (DataDir=%s)\n", *dataDir)

	cities := []struct {
		name string
		lon  float64
		lat  float64
	}{
		{"london", -0.13, 51.51},
		{"paris", 2.35, 48.86},
		{"berlin", 13.40, 52.52},
		{"madrid", -3.70, 40.42},
		{"rome", 12.50, 41.90},
	}
	batch := make([]rows.Row[pt, value.Value], 0, len(cities))
	for _, c := range cities {
		p := pt{V0: point.NewScalar(c.lon), V1: point.NewScalar(c.lat)}
		batch = append(batch, rows.NewInsert[pt, value.Value](p, value.Bytes(c.name)))
	}
	if err := database.Batch(batch); err != nil {
		log.Fatalf("eyrosdemo: batch insert: %v", err)
	}
	fmt.Printf("inserted %d points\n", len(batch))

	bounds := bd{LowA: -10, HighA: 15, LowB: 40, HighB: 55}
	fmt.Printf("querying bbox lon=[%.2f,%.2f] lat=[%.2f,%.2f]\n", bounds.LowA, bounds.HighA, bounds.LowB, bounds.HighB)

	it := database.Query(bounds, func(p pt, b bd) bool { return p.Overlaps(b) })
	for it.Next() {
		r := it.Current()
		fmt.Printf("  %s at (%.2f, %.2f)\n", r.Value.(value.Bytes), r.Point.V0.Lo, r.Point.V1.Lo)
	}
	if err := it.Err(); err != nil {
		log.Fatalf("eyrosdemo: query: %v", err)
	}

	select {
	case <-ctx.Done():
	default:
	}

	fmt.Println("eyros demo done")
	os.Exit(0)
}
