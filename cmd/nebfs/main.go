package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/bodgit/plumbing"
	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	"github.com/nebula-modding/nebfs"
	"github.com/nebula-modding/nebfs/internal/config"
	"github.com/nebula-modding/nebfs/internal/logging"
	"github.com/nebula-modding/nebfs/keys"
	"github.com/nebula-modding/nebfs/lz11"
	"github.com/nebula-modding/nebfs/source"
	"github.com/nebula-modding/nebfs/u8"
	"github.com/nebula-modding/nebfs/wbfs"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	fs  = afero.NewOsFs()
	v   = viper.New()
	cfg = &config.Config{}

	closeLog = func() error { return nil }
)

func init() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"V"},
		Usage:   "print the version",
	}
}

// container is an opened archive or disc image.
type container interface {
	nebfs.FS
	io.Closer
}

func keyStore(input string) (keys.Store, error) {
	chain := keys.Chain{keys.NewViperStore(v)}

	file, explicit := cfg.CommonKeyFile, cfg.CommonKeyFile != ""
	if !explicit {
		file = filepath.Join(filepath.Dir(input), keys.CommonKeyFile)
	}

	k, err := keys.FromFile(fs, file)
	switch {
	case err == nil:
		chain = append(chain, keys.Static{keys.WiiCommon: k})
	case explicit || !errors.Is(err, os.ErrNotExist):
		return nil, err
	}

	return chain, nil
}

func openFile(name string) (container, error) {
	d, err := source.OpenDisk(fs, name)
	if err != nil {
		return nil, err
	}

	head, err := source.ReadRange(d, 0, len(wbfs.Magic))
	if cerr := d.Close(); cerr != nil {
		err = multierror.Append(err, cerr)
	}
	if err != nil {
		return nil, err
	}

	if !bytes.Equal(head, wbfs.Magic[:]) {
		return u8.Open(fs, name)
	}

	ks, err := keyStore(name)
	if err != nil {
		return nil, err
	}

	return wbfs.Open(fs, name, ks, wbfs.WithCacheSize(cfg.Cache.Clusters))
}

// openReader prefers streaming over materializing the whole file.
func openReader(fsys nebfs.FS, name string) (io.Reader, error) {
	if o, ok := fsys.(interface {
		Open(string) (*io.SectionReader, error)
	}); ok {
		sr, err := o.Open(name)
		if err != nil {
			return nil, err
		}
		return sr, nil
	}

	src, err := fsys.File(name)
	if err != nil {
		return nil, err
	}
	return io.NewSectionReader(src, 0, src.Size()), nil
}

func list(name, dir string, sizes bool) error {
	c, err := openFile(name)
	if err != nil {
		return err
	}
	defer c.Close()

	d, err := nebfs.OpenDir(c, dir)
	if err != nil {
		return err
	}

	return d.Tree(os.Stdout, sizes)
}

func cat(name string, paths []string) error {
	c, err := openFile(name)
	if err != nil {
		return err
	}
	defer c.Close()

	for _, p := range paths {
		r, err := openReader(c, p)
		if err != nil {
			return err
		}
		if _, err = io.Copy(os.Stdout, r); err != nil {
			return err
		}
	}

	return nil
}

func extractFile(fsys nebfs.FS, name, target string, progress io.Writer) (err error) {
	r, err := openReader(fsys, name)
	if err != nil {
		return err
	}

	var w io.WriteCloser

	w, err = fs.Create(target)
	if err != nil {
		return err
	}

	if progress != nil {
		w = plumbing.MultiWriteCloser(w, plumbing.NopWriteCloser(progress))
	}

	defer func() {
		if cerr := w.Close(); cerr != nil {
			err = multierror.Append(err, cerr)
		}
	}()

	_, err = io.Copy(w, r)

	return err
}

// target maps a container path onto the extraction directory, refusing
// paths that would land outside it.
func target(directory, rel string) (string, error) {
	p := filepath.FromSlash(rel)
	if !filepath.IsLocal(p) {
		return "", fmt.Errorf("refusing to extract %q outside %s", rel, directory)
	}
	return filepath.Join(directory, p), nil
}

func extract(name, dir, directory string, verbose bool) error {
	c, err := openFile(name)
	if err != nil {
		return err
	}
	defer c.Close()

	root, err := nebfs.OpenDir(c, dir)
	if err != nil {
		return err
	}

	if err = fs.MkdirAll(directory, 0o755); err != nil {
		return err
	}

	var (
		files   []string
		targets []string
		total   int64
	)

	err = root.Walk(func(rel string, isDir bool) error {
		t, err := target(directory, rel)
		if err != nil {
			return err
		}
		if isDir {
			return fs.MkdirAll(t, 0o755)
		}
		files = append(files, rel)
		targets = append(targets, t)
		total += root.FileSize(rel)
		return nil
	})
	if err != nil {
		return err
	}

	var progress io.Writer
	if verbose {
		progress = progressbar.DefaultBytes(total)
	}

	g := new(errgroup.Group)
	g.SetLimit(cfg.Extract.Workers)

	for i, rel := range files {
		i, rel := i, rel
		g.Go(func() error {
			return extractFile(c, nebfs.Join(root.Path(), rel), targets[i], progress)
		})
	}

	return g.Wait()
}

func info(name string) error {
	c, err := openFile(name)
	if err != nil {
		return err
	}
	defer c.Close()

	switch c := c.(type) {
	case *wbfs.WBFS:
		fmt.Printf("Game ID:      %s\n", c.ID())
		fmt.Printf("Name:         %s\n", c.Name())
		fmt.Printf("Region:       %s (%c)\n", c.RegionName(), c.Region())
		fmt.Printf("Universal ID: %s\n", c.UniversalID())
		fmt.Printf("Publisher:    %s\n", c.PublisherCode())
		fmt.Printf("Disc:         %d\n", c.DiscNumber()+1)
		fmt.Printf("Files:        %d\n", len(c.Paths()))
		fmt.Printf("Used size:    %s\n", humanize.IBytes(uint64(c.UsedSize())))
	case *u8.Archive:
		var (
			files, dirs int
			total       int64
		)
		for _, e := range c.List() {
			if e.IsDir {
				dirs++
				continue
			}
			files++
			total += e.Size
		}
		fmt.Printf("Directories:  %d\n", dirs)
		fmt.Printf("Files:        %d\n", files)
		fmt.Printf("Data size:    %s\n", humanize.IBytes(uint64(total)))
	}

	return nil
}

func decompress(src, dst string, verbose bool) (err error) {
	if dst == "" {
		ext := filepath.Ext(src)
		if !strings.EqualFold(ext, ".lz") {
			return fmt.Errorf("cannot derive a target name from %s", src)
		}

		dst = strings.TrimSuffix(src, ext)
	}

	f, err := fs.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	r, err := lz11.NewReader(f)
	if err != nil {
		return err
	}

	var w io.WriteCloser

	w, err = fs.Create(dst)
	if err != nil {
		return err
	}

	if verbose {
		pb := progressbar.DefaultBytes(r.Size())
		w = plumbing.MultiWriteCloser(w, plumbing.NopWriteCloser(pb))
	}

	defer func() {
		if cerr := w.Close(); cerr != nil {
			err = multierror.Append(err, cerr)
		}
	}()

	_, err = io.Copy(w, r)

	return err
}

func pack(directory, dst string) (err error) {
	var files []u8.File

	err = afero.Walk(fs, directory, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(directory, p)
		if err != nil || rel == "." {
			return err
		}
		rel = filepath.ToSlash(rel)

		if fi.IsDir() {
			files = append(files, u8.File{Path: rel + "/"})
			return nil
		}

		b, err := afero.ReadFile(fs, p)
		if err != nil {
			return err
		}
		files = append(files, u8.File{Path: rel, Data: b})

		return nil
	})
	if err != nil {
		return err
	}

	f, err := fs.Create(dst)
	if err != nil {
		return err
	}

	defer func() {
		if cerr := f.Close(); cerr != nil {
			err = multierror.Append(err, cerr)
		}
	}()

	return u8.Write(f, files)
}

func setup(c *cli.Context) error {
	overrides := map[string]string{
		"log-level":      "log_level",
		"log-file":       "log_file",
		"common-key":     "common_key",
		"cache-clusters": "cache.clusters",
	}
	for flag, key := range overrides {
		if c.IsSet(flag) {
			v.Set(key, c.Value(flag))
		}
	}

	loaded, err := config.Load(v, fs, c.Path("config"))
	if err != nil {
		return err
	}
	cfg = loaded

	closer, err := logging.Setup(cfg.LogLevel, cfg.LogFile, fs)
	if err != nil {
		return err
	}
	closeLog = closer

	return nil
}

func main() {
	app := cli.NewApp()

	app.Name = "nebfs"
	app.Usage = "Wii U8 archive and WBFS disc image utility"
	app.Version = fmt.Sprintf("%s, commit %s, built at %s", version, commit, date)

	cwd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}

	app.Flags = []cli.Flag{
		&cli.PathFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "read settings from `FILE`",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "log `LEVEL` (debug, info, warn, error)",
		},
		&cli.PathFlag{
			Name:  "log-file",
			Usage: "also write JSON logs to `FILE`",
		},
		&cli.PathFlag{
			Name:    "common-key",
			Aliases: []string{"k"},
			Usage:   "read the common key from `FILE` (default " + keys.CommonKeyFile + " next to the image)",
		},
		&cli.IntFlag{
			Name:  "cache-clusters",
			Usage: "keep `N` decrypted clusters in memory",
		},
	}
	app.Before = setup
	app.After = func(*cli.Context) error {
		return closeLog()
	}

	app.Commands = []*cli.Command{
		{
			Name:        "ls",
			Usage:       "List the contents of a " + u8.Extension + " or " + wbfs.Extension + " file",
			Description: "",
			ArgsUsage:   "FILE [DIRECTORY]",
			Action: func(c *cli.Context) error {
				if c.NArg() < 1 {
					cli.ShowCommandHelpAndExit(c, c.Command.Name, 1)
				}

				return list(c.Args().Get(0), c.Args().Get(1), c.Bool("sizes"))
			},
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:    "sizes",
					Aliases: []string{"s"},
					Usage:   "show file sizes and the total",
				},
			},
		},
		{
			Name:        "cat",
			Usage:       "Write files from a " + u8.Extension + " or " + wbfs.Extension + " file to standard output",
			Description: "",
			ArgsUsage:   "FILE PATH...",
			Action: func(c *cli.Context) error {
				if c.NArg() < 2 {
					cli.ShowCommandHelpAndExit(c, c.Command.Name, 1)
				}

				return cat(c.Args().Get(0), c.Args().Tail())
			},
		},
		{
			Name:        "extract",
			Usage:       "Extract the files of a " + u8.Extension + " or " + wbfs.Extension + " file",
			Description: "",
			ArgsUsage:   "FILE [DIRECTORY]",
			Action: func(c *cli.Context) error {
				if c.NArg() < 1 {
					cli.ShowCommandHelpAndExit(c, c.Command.Name, 1)
				}

				if c.IsSet("workers") {
					if c.Int("workers") < 1 {
						return fmt.Errorf("workers must be positive, got %d", c.Int("workers"))
					}
					cfg.Extract.Workers = c.Int("workers")
				}

				return extract(c.Args().Get(0), c.Args().Get(1), c.Path("directory"), c.Bool("verbose"))
			},
			Flags: []cli.Flag{
				&cli.PathFlag{
					Name:    "directory",
					Aliases: []string{"d"},
					Usage:   "extract to `DIRECTORY`",
					Value:   cwd,
				},
				&cli.IntFlag{
					Name:    "workers",
					Aliases: []string{"j"},
					Usage:   "extract `N` files at once",
				},
				&cli.BoolFlag{
					Name:    "verbose",
					Aliases: []string{"v"},
					Usage:   "increase verbosity",
				},
			},
		},
		{
			Name:        "info",
			Usage:       "Describe a " + u8.Extension + " or " + wbfs.Extension + " file",
			Description: "",
			ArgsUsage:   "FILE",
			Action: func(c *cli.Context) error {
				if c.NArg() < 1 {
					cli.ShowCommandHelpAndExit(c, c.Command.Name, 1)
				}

				return info(c.Args().Get(0))
			},
		},
		{
			Name:        "lz11",
			Usage:       "Decompress an LZ11 file",
			Description: "",
			ArgsUsage:   "SOURCE [TARGET]",
			Action: func(c *cli.Context) error {
				if c.NArg() < 1 {
					cli.ShowCommandHelpAndExit(c, c.Command.Name, 1)
				}

				return decompress(c.Args().Get(0), c.Args().Get(1), c.Bool("verbose"))
			},
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:    "verbose",
					Aliases: []string{"v"},
					Usage:   "increase verbosity",
				},
			},
		},
		{
			Name:        "pack",
			Usage:       "Pack a directory into a " + u8.Extension + " file",
			Description: "",
			ArgsUsage:   "DIRECTORY TARGET",
			Action: func(c *cli.Context) error {
				if c.NArg() < 2 {
					cli.ShowCommandHelpAndExit(c, c.Command.Name, 1)
				}

				return pack(c.Args().Get(0), c.Args().Get(1))
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
