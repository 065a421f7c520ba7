// Command vblockfsctl formats and inspects vblockfs images from outside a
// mount, for scripting and manual debugging. Grounded on the teacher's own
// cmd/main.go, which dispatches disk-image subcommands through
// urfave/cli/v2 the same way.
package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/corvidfs/vblockfs/blockdevice"
	"github.com/corvidfs/vblockfs/core"
	"github.com/corvidfs/vblockfs/disks"
	"github.com/corvidfs/vblockfs/fsck"
	"github.com/corvidfs/vblockfs/layout"
	"github.com/corvidfs/vblockfs/vtable"
)

func main() {
	app := &cli.App{
		Usage: "Format, inspect, and debug vblockfs disk images",
		Commands: []*cli.Command{
			{
				Name:      "format",
				Usage:     "Create or wipe an image",
				Action:    formatImage,
				ArgsUsage: "IMAGE_FILE",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "profile", Value: "default", Usage: "named size profile from the disks package"},
				},
			},
			{
				Name:      "ls",
				Usage:     "List a directory's entries",
				Action:    listDirectory,
				ArgsUsage: "IMAGE_FILE PATH",
			},
			{
				Name:      "cat",
				Usage:     "Print a file's contents",
				Action:    catFile,
				ArgsUsage: "IMAGE_FILE PATH",
			},
			{
				Name:      "stat",
				Usage:     "Print a path's metadata",
				Action:    statPath,
				ArgsUsage: "IMAGE_FILE PATH",
			},
			{
				Name:      "fsck",
				Usage:     "Check an image for consistency violations",
				Action:    checkImage,
				ArgsUsage: "IMAGE_FILE",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("vblockfsctl: %s", err.Error())
	}
}

func formatImage(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return cli.Exit("missing IMAGE_FILE argument", 1)
	}
	profile, err := disks.GetProfile(c.String("profile"))
	if err != nil {
		return err
	}

	dev, err := blockdevice.NewFileDevice(path, layout.BlockSize, profile.TotalBlocks)
	if err != nil {
		return err
	}
	return core.Mkfs(dev, profile.Geometry())
}

func openImage(path string) (*core.FileSystem, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	blockCount := uint32(info.Size() / layout.BlockSize)
	dev, err := blockdevice.NewFileDevice(path, layout.BlockSize, blockCount)
	if err != nil {
		return nil, err
	}
	return core.Mount(dev)
}

func listDirectory(c *cli.Context) error {
	if c.Args().Len() < 2 {
		return cli.Exit("usage: ls IMAGE_FILE PATH", 1)
	}
	fs, err := openImage(c.Args().Get(0))
	if err != nil {
		return err
	}
	defer fs.Unmount()

	table := vtable.New(fs)
	names, err := table.Readdir(c.Args().Get(1))
	if err != nil {
		return err
	}
	fmt.Println(strings.Join(names, "\n"))
	return nil
}

func catFile(c *cli.Context) error {
	if c.Args().Len() < 2 {
		return cli.Exit("usage: cat IMAGE_FILE PATH", 1)
	}
	fs, err := openImage(c.Args().Get(0))
	if err != nil {
		return err
	}
	defer fs.Unmount()

	table := vtable.New(fs)
	stat, err := table.Getattr(c.Args().Get(1))
	if err != nil {
		return err
	}
	handle, err := table.Open(c.Args().Get(1), 0, 0)
	if err != nil {
		return err
	}
	buf := make([]byte, stat.Size)
	n, err := table.Read(handle, 0, buf)
	if err != nil {
		return err
	}
	os.Stdout.Write(buf[:n])
	return nil
}

func statPath(c *cli.Context) error {
	if c.Args().Len() < 2 {
		return cli.Exit("usage: stat IMAGE_FILE PATH", 1)
	}
	fs, err := openImage(c.Args().Get(0))
	if err != nil {
		return err
	}
	defer fs.Unmount()

	table := vtable.New(fs)
	stat, err := table.Getattr(c.Args().Get(1))
	if err != nil {
		return err
	}
	fmt.Printf("inode:  %d\n", stat.InodePos)
	fmt.Printf("mode:   %#o\n", stat.Mode)
	fmt.Printf("size:   %d\n", stat.Size)
	fmt.Printf("mtime:  %s\n", stat.Mtime)
	return nil
}

func checkImage(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return cli.Exit("missing IMAGE_FILE argument", 1)
	}
	fs, err := openImage(path)
	if err != nil {
		return err
	}
	defer fs.Unmount()

	report := fsck.Check(fs)
	fmt.Printf("inodes visited: %d\n", report.InodesVisited)
	if report.OK() {
		fmt.Println("no violations found")
		return nil
	}
	return report.Errors
}
