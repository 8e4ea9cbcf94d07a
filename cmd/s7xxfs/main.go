// Command s7xxfs is a small CLI front end over the driver: format images,
// check them, list their contents, and export an inventory. Grounded on the
// teacher's cmd/main.go urfave/cli/v2 App{Commands: [...]} skeleton, with
// "format" replaced by the full mount/mkfs/fsck/inventory surface this
// driver actually needs.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/gocarina/gocsv"
	"github.com/urfave/cli/v2"

	"github.com/rolandfs/s7xxfs/fs"
	"github.com/rolandfs/s7xxfs/fsck"
	"github.com/rolandfs/s7xxfs/layout"
	"github.com/rolandfs/s7xxfs/mkfs"
)

func main() {
	app := &cli.App{
		Name:  "s7xxfs",
		Usage: "inspect and repair Roland S-7XX sampler disk images",
		Commands: []*cli.Command{
			mkfsCommand,
			fsckCommand,
			lsCommand,
			inventoryCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}

var mkfsCommand = &cli.Command{
	Name:      "mkfs",
	Usage:     "format a new blank image",
	ArgsUsage: "IMAGE_PATH SIZE_BYTES",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "label", Value: ""},
	},
	Action: func(c *cli.Context) error {
		if c.Args().Len() < 2 {
			return fmt.Errorf("usage: mkfs IMAGE_PATH SIZE_BYTES")
		}
		path := c.Args().Get(0)
		size, err := parseSize(c.Args().Get(1))
		if err != nil {
			return err
		}

		f, ferr := os.Create(path)
		if ferr != nil {
			return ferr
		}
		defer f.Close()

		if err := mkfs.Format(f, size, c.String("label")); err != nil {
			return err
		}
		fmt.Printf("formatted %s (%d bytes)\n", path, size)
		return nil
	},
}

var fsckCommand = &cli.Command{
	Name:      "fsck",
	Usage:     "check an image for inconsistencies",
	ArgsUsage: "IMAGE_PATH",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "repair"},
	},
	Action: func(c *cli.Context) error {
		path := c.Args().Get(0)
		if path == "" {
			return fmt.Errorf("usage: fsck IMAGE_PATH")
		}

		flags := os.O_RDONLY
		if c.Bool("repair") {
			flags = os.O_RDWR
		}
		f, ferr := os.OpenFile(path, flags, 0)
		if ferr != nil {
			return ferr
		}
		defer f.Close()

		size, serr := fileSize(f)
		if serr != nil {
			return serr
		}

		report, err := fsck.Check(f, size, c.Bool("repair"))
		if err != nil {
			return err
		}
		for _, finding := range report.Findings {
			status := "found"
			if finding.Repaired {
				status = "repaired"
			}
			fmt.Printf("[%s] %s\n", status, finding.Message)
		}
		if report.Clean() {
			fmt.Println("no inconsistencies found")
		}
		return nil
	},
}

var lsCommand = &cli.Command{
	Name:      "ls",
	Usage:     "list a directory within a mounted image",
	ArgsUsage: "IMAGE_PATH [PATH]",
	Action: func(c *cli.Context) error {
		path := c.Args().Get(0)
		if path == "" {
			return fmt.Errorf("usage: ls IMAGE_PATH [PATH]")
		}
		dirPath := c.Args().Get(1)
		if dirPath == "" {
			dirPath = "/"
		}

		fsys, f, err := openReadOnly(path)
		if err != nil {
			return err
		}
		defer f.Close()

		entries, derr := fsys.List(dirPath)
		if derr != nil {
			return derr
		}
		for _, e := range entries {
			if e.IsDir {
				fmt.Printf("%s/\n", e.Name)
			} else {
				fmt.Printf("%-5d %s\n", e.Index, e.Name)
			}
		}
		return nil
	},
}

// inventoryRow is one line of the `inventory` subcommand's CSV export.
type inventoryRow struct {
	Kind  string `csv:"kind"`
	Index int    `csv:"index"`
	Name  string `csv:"name"`
}

var inventoryCommand = &cli.Command{
	Name:      "inventory",
	Usage:     "export every object in an image as CSV",
	ArgsUsage: "IMAGE_PATH",
	Action: func(c *cli.Context) error {
		path := c.Args().Get(0)
		if path == "" {
			return fmt.Errorf("usage: inventory IMAGE_PATH")
		}

		fsys, f, err := openReadOnly(path)
		if err != nil {
			return err
		}
		defer f.Close()

		var rows []*inventoryRow
		for _, kind := range layout.AllObjectKinds {
			entries, derr := fsys.List("/" + kind.DirName())
			if derr != nil {
				return derr
			}
			for _, e := range entries {
				rows = append(rows, &inventoryRow{Kind: kind.DirName(), Index: e.Index, Name: e.Name})
			}
		}

		out, merr := gocsv.MarshalString(&rows)
		if merr != nil {
			return merr
		}
		fmt.Print(out)
		return nil
	},
}

func openReadOnly(path string) (*fs.FileSystem, *os.File, error) {
	f, ferr := os.Open(path)
	if ferr != nil {
		return nil, nil, ferr
	}
	size, serr := fileSize(f)
	if serr != nil {
		f.Close()
		return nil, nil, serr
	}
	fsys, err := fs.Mount(f, size, true)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return fsys, f, nil
}

func fileSize(f *os.File) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func parseSize(s string) (int64, error) {
	var size int64
	if _, err := fmt.Sscanf(s, "%d", &size); err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if size <= 0 {
		return 0, fmt.Errorf("size must be positive, got %d", size)
	}
	return size, nil
}
