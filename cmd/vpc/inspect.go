package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/couchcryptid/storm-vp-classifier/internal/adapter/export"
)

func runInspect(ctx context.Context, env *environment, args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	name := fs.String("scheme", "", "name of the stored scheme")
	list := fs.Bool("list", false, "list stored schemes instead")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *list {
		if env.lister == nil {
			return fmt.Errorf("scheme store %q cannot list schemes", env.cfg.SchemeStore)
		}
		names, err := env.lister.List()
		if err != nil {
			return err
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return nil
	}
	s, err := env.loadScheme(ctx, *name)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(struct {
		Name     string `json:"name"`
		State    string `json:"state"`
		Metadata any    `json:"metadata"`
	}{s.Name(), s.State().String(), s.Metadata()}); err != nil {
		return err
	}
	fmt.Println()
	return export.WriteCSV(os.Stdout, export.PCAFrame(s.PCA().Stats()))
}
