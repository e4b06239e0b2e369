package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"

	restapi "github.com/hedisam/filedrop/client/api/rest"
	"github.com/hedisam/filedrop/client/filesystem"
)

type Options struct {
	ServerAddr string
	GetKey     string
	InfoKey    string
	OutPath    string
	Verbose    bool
}

func main() {
	logger := logrus.New()

	var opts Options
	flag.StringVar(&opts.ServerAddr, "server-addr", "http://127.0.0.1:5000", "Server address to connect to.")
	flag.StringVar(&opts.GetKey, "get", "", "Download the file stored under this key.")
	flag.StringVar(&opts.InfoKey, "info", "", "Print the metadata of the file stored under this key.")
	flag.StringVar(&opts.OutPath, "out", "", "Where to write a downloaded file; defaults to its original name, '-' for stdout.")
	flag.BoolVar(&opts.Verbose, "v", false, "Verbose output")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <file|dir>...\n       %s [flags] -get <key>\n", os.Args[0], os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if opts.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	modes := 0
	for _, set := range []bool{opts.GetKey != "", opts.InfoKey != "", flag.NArg() > 0} {
		if set {
			modes++
		}
	}
	if modes != 1 {
		flag.Usage()
		os.Exit(1)
	}

	client, err := restapi.NewClient(logger, opts.ServerAddr)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create rest client")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch {
	case opts.GetKey != "":
		err = download(ctx, client, opts.GetKey, opts.OutPath)
	case opts.InfoKey != "":
		err = describe(ctx, client, opts.InfoKey)
	default:
		err = upload(ctx, logger, client, flag.Args())
	}
	if err != nil {
		if errors.Is(err, restapi.ErrNotFound) {
			fmt.Fprintln(os.Stderr, "no such file")
			os.Exit(1)
		}
		logger.WithError(err).Fatal("Request failed")
	}
}

func upload(ctx context.Context, logger *logrus.Logger, client *restapi.Client, paths []string) error {
	files, err := filesystem.Collect(ctx, logger, paths...)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.New("nothing to upload")
	}

	links, err := client.Upload(ctx, files...)
	if err != nil {
		return err
	}
	for _, l := range links {
		fmt.Printf("%s: %s\n", l.Filename, l.URL)
	}
	return nil
}

func download(ctx context.Context, client *restapi.Client, key, out string) (err error) {
	var w io.Writer = os.Stdout
	var tmp *os.File
	if out != "-" {
		tmp, err = os.CreateTemp(".", ".filedrop-*")
		if err != nil {
			return fmt.Errorf("create temp file: %w", err)
		}
		defer func() {
			_ = tmp.Close()
			if err != nil {
				_ = os.Remove(tmp.Name())
			}
		}()
		w = tmp
	}

	dl, err := client.Download(ctx, key, w)
	if err != nil {
		return err
	}
	if tmp == nil {
		return nil
	}

	if out == "" {
		out = filepath.Base(dl.Filename)
	}
	if out == "" || out == "." || out == string(filepath.Separator) {
		out = key
	}
	if err = os.Rename(tmp.Name(), out); err != nil {
		return fmt.Errorf("rename download: %w", err)
	}
	fmt.Fprintf(os.Stderr, "%s (%s, %d bytes)\n", out, dl.ContentType, dl.Written)
	return nil
}

func describe(ctx context.Context, client *restapi.Client, key string) error {
	info, err := client.Describe(ctx, key)
	if err != nil {
		return err
	}
	fmt.Printf("key:      %s\nfilename: %s\ncreated:  %s\nexpires:  %s\n", info.Key, info.Filename, info.Created, info.Expires)
	return nil
}
