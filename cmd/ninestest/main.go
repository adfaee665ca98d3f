// Command ninestest recognizes and validates a drawing stored as an image file.
package main

import (
	"flag"
	"fmt"
	"image"
	"image/png"
	"os"

	"nines/internal/app"
	"nines/internal/config"
	"nines/internal/raster"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	imagePath := flag.String("image", "", "Path to drawing (TIFF, PNG, or JPEG)")
	target := flag.Int("target", 27, "Target number")
	configPath := flag.String("config", "", "Path to config file")
	debugImg := flag.String("debug-img", "", "Write each normalized glyph to <prefix>_<n>.png")
	flag.Parse()

	if *imagePath == "" {
		fmt.Println("Usage: ninestest -image <path> [-target 27] [-config nines.yaml] [-debug-img prefix]")
		os.Exit(1)
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	zerolog.SetGlobalLevel(cfg.LogLevel)

	buf, err := raster.Load(*imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load image: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded image: %dx%d pixels\n", buf.Width(), buf.Height())

	a, err := app.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up recognizer: %v\n", err)
		os.Exit(1)
	}
	code := run(a, buf, *target, *debugImg)
	a.Close()
	os.Exit(code)
}

func run(a *app.App, buf *raster.Buffer, target int, debugImg string) int {
	cfg := a.Config
	p := cfg.Pipeline
	fmt.Printf("\nParameters:\n")
	fmt.Printf("  Threshold: %.0f\n", p.Threshold)
	fmt.Printf("  Min area: %d px, %d-connected\n", p.Segment.MinArea, p.Segment.Connectivity)
	fmt.Printf("  Glyph: %dx%d %s invert=%v\n", p.Glyph.Size, p.Glyph.Size, p.Glyph.Interpolation, p.Glyph.Invert)
	fmt.Printf("  Model: %s %s\n", cfg.Model.Backend, cfg.Model.Path)

	res, rec, err := a.Pipeline.Evaluate(buf, target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Recognition failed: %v\n", err)
		return 1
	}

	fmt.Printf("\nDetected %d regions:\n", len(rec.Regions))
	fmt.Printf("%-8s %6s %6s %6s %6s %6s\n", "#", "MinX", "MinY", "W", "H", "Area")
	for i, r := range rec.Regions {
		fmt.Printf("%-8d %6d %6d %6d %6d %6d\n", i, r.MinX, r.MinY, r.Width(), r.Height(), r.Area)
	}

	fmt.Printf("\nSymbols (reading order):\n")
	for _, s := range rec.Symbols {
		fmt.Printf("  x=%-5d %-2s %.3f\n", s.AnchorX, s.Symbol, s.Confidence)
	}

	if debugImg != "" {
		mask := raster.Binarize(buf, p.Threshold)
		if err := writePNG(debugImg+"_mask.png", mask.Gray()); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write mask: %v\n", err)
		}
		for i, g := range rec.Glyphs {
			if err := writePNG(fmt.Sprintf("%s_%d.png", debugImg, i), g.Image(8)); err != nil {
				fmt.Fprintf(os.Stderr, "Failed to write glyph %d: %v\n", i, err)
			}
		}
	}

	fmt.Printf("\nExpression: %q\n", rec.Expression)
	fmt.Printf("Target: %d\n", target)
	fmt.Printf("%s\n", res.Message)
	if !res.Valid {
		return 2
	}
	return 0
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}
