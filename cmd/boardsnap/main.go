// Command boardsnap renders a saved board to a PNG without starting the
// terminal UI. Boards come from an exported JSON file or from the
// workspace database by snapshot name.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"agentboard/internal/board"
	"agentboard/internal/render"
	sqlitestore "agentboard/internal/store/sqlite"
)

func main() {
	input := flag.String("input", "", "board JSON file to render")
	name := flag.String("name", "", "snapshot name to load from the workspace database")
	dbPath := flag.String("db", "data/agentboard.db", "sqlite database path")
	output := flag.String("out", "", "output PNG path (default: derived from the input)")
	scale := flag.Float64("scale", 1, "raster scale factor")
	dark := flag.Bool("dark", false, "render on the dark palette")
	jsonOut := flag.String("json", "", "also write the normalized board JSON to this path")
	list := flag.Bool("list", false, "list snapshots in the workspace database and exit")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if *list {
		if err := listSnapshots(ctx, *dbPath); err != nil {
			log.Fatalf("list snapshots: %v", err)
		}
		return
	}

	snap, err := loadSnapshot(ctx, *input, *name, *dbPath)
	if err != nil {
		log.Fatalf("load board: %v", err)
	}

	out := *output
	if out == "" {
		out = derivedOutput(*input, *name)
	}
	opts := render.Options{Scale: *scale, Dark: *dark}
	if err := render.WritePNG(snap, out, opts); err != nil {
		log.Fatalf("render board: %v", err)
	}
	if *jsonOut != "" {
		if err := writeNormalized(snap, *jsonOut); err != nil {
			log.Fatalf("write json: %v", err)
		}
	}
	fmt.Printf("wrote %s (%d boxes, %d connections)\n", out, len(snap.Boxes), len(snap.Connections))
}

func loadSnapshot(ctx context.Context, input string, name string, dbPath string) (board.Snapshot, error) {
	switch {
	case input != "":
		data, err := os.ReadFile(input)
		if err != nil {
			return board.Snapshot{}, err
		}
		// Round-tripping through a board validates the document.
		b := board.New()
		if err := b.ImportJSON(data); err != nil {
			return board.Snapshot{}, err
		}
		return b.Snapshot(), nil
	case name != "":
		store, err := sqlitestore.Open(dbPath)
		if err != nil {
			return board.Snapshot{}, err
		}
		defer func() {
			_ = store.Close()
		}()
		if err := store.Migrate(ctx); err != nil {
			return board.Snapshot{}, err
		}
		return store.Load(ctx, name)
	default:
		return board.Snapshot{}, fmt.Errorf("either -input or -name is required")
	}
}

func listSnapshots(ctx context.Context, dbPath string) error {
	store, err := sqlitestore.Open(dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()
	if err := store.Migrate(ctx); err != nil {
		return err
	}
	infos, err := store.List(ctx)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("no snapshots")
		return nil
	}
	fmt.Printf("%-24s %6s %12s  %s\n", "NAME", "BOXES", "CONNECTIONS", "UPDATED")
	for _, info := range infos {
		fmt.Printf("%-24s %6d %12d  %s\n",
			info.Name, info.Boxes, info.Connections,
			info.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return nil
}

func writeNormalized(snap board.Snapshot, path string) error {
	b := board.New()
	if err := b.Restore(snap); err != nil {
		return err
	}
	data, err := b.ExportJSON()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func derivedOutput(input string, name string) string {
	if input != "" {
		base := strings.TrimSuffix(input, ".json")
		return base + ".png"
	}
	if name != "" {
		return name + ".png"
	}
	return "board.png"
}
