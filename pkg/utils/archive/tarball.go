package archive

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
)

// Suffix is the extension of archives made by Dir.
const Suffix = ".tar.gz"

type Progress interface {
	// EstimatedTotalSize returns the total size of files to be archived.
	//
	// This is estimated and not compressed size.
	EstimatedTotalSize() int64

	// ProgressedSize returns the size of archived files.
	//
	// This is raw (not compressed) size.
	ProgressedSize() int64

	// ProgressingFile returns the file name which is currently being archived.
	ProgressingFile() string

	// Error returns error caused during archiving.
	//
	// It is meaningful after Done is closed.
	Error() error

	// Done returns a channel which is closed when archiving is done.
	Done() <-chan struct{}

	// EstimateDone returns a channel which is closed when EstimatedTotalSize is calcurated.
	EstimateDone() <-chan struct{}
}

type progress struct {
	totalSize atomic.Int64
	doneSize  atomic.Int64
	file      atomic.Pointer[string]
	err       error
	done      chan struct{}
	estDone   chan struct{}
}

func newProgress() *progress {
	return &progress{
		done:    make(chan struct{}),
		estDone: make(chan struct{}),
	}
}

func (m *progress) EstimatedTotalSize() int64 {
	return m.totalSize.Load()
}

func (m *progress) ProgressedSize() int64 {
	return m.doneSize.Load()
}

func (m *progress) ProgressingFile() string {
	if f := m.file.Load(); f != nil {
		return *f
	}
	return ""
}

func (m *progress) Error() error {
	return m.err
}

func (m *progress) Done() <-chan struct{} {
	return m.done
}

func (m *progress) EstimateDone() <-chan struct{} {
	return m.estDone
}

// GoTarGz archives the directory root into dest as a gzipped tar, in background goroutine.
//
// Entries are named as paths relative to the parent of root,
// so extracting the archive recreates the directory itself.
// Symlinks are archived as symlinks.
//
// # Args
//
// - ctx context.Context: context to be used for archiving.
//
// - root string: directory to be archived.
//
// - dest io.Writer: where tar.gz stream is to be written. It is not closed.
//
// # Returns
//
// - Progress: monitor object to watch the progress of archiving.
func GoTarGz(ctx context.Context, root string, dest io.Writer) Progress {
	prog := newProgress()

	started := false
	defer func() {
		if !started {
			close(prog.estDone)
			close(prog.done)
		}
	}()

	absroot, err := filepath.Abs(root)
	if err != nil {
		prog.err = err
		return prog
	}
	if stat, err := os.Stat(absroot); err != nil {
		prog.err = err
		return prog
	} else if !stat.IsDir() {
		prog.err = fmt.Errorf("%s is not a directory", absroot)
		return prog
	}
	base := filepath.Dir(absroot)

	go func() {
		defer close(prog.estDone)
		findFiles(absroot, func(_ string, info fs.FileInfo) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if info.Mode().IsRegular() {
				prog.totalSize.Add(info.Size())
			}
			return nil
		})
	}()

	started = true
	go func() {
		defer close(prog.done)

		gzout := gzip.NewWriter(dest)
		tarout := tar.NewWriter(gzout)
		writer := &reportingWriter{dest: tarout, prog: prog}

		err := findFiles(absroot, func(fullpath string, fi fs.FileInfo) error {
			if err := ctx.Err(); err != nil {
				return err
			}

			relpath, err := filepath.Rel(base, fullpath)
			if err != nil {
				return err
			}
			prog.file.Store(&relpath)

			linkname := ""
			if fi.Mode()&os.ModeSymlink != 0 {
				ln, err := os.Readlink(fullpath)
				if err != nil {
					return err
				}
				linkname = ln
			}

			hdr, err := tar.FileInfoHeader(fi, linkname)
			if err != nil {
				return err
			}
			hdr.Name = filepath.ToSlash(relpath)
			if fi.IsDir() {
				hdr.Name += "/"
			}
			if err := tarout.WriteHeader(hdr); err != nil {
				return err
			}

			if !fi.Mode().IsRegular() {
				return nil
			}
			fp, err := ctxOpen(ctx, fullpath)
			if err != nil {
				return err
			}
			defer fp.Close()
			_, err = io.Copy(writer, fp)
			return err
		})
		if err == nil {
			err = tarout.Close()
		}
		if err == nil {
			err = gzout.Close()
		}
		prog.err = err
	}()

	return prog
}

type dirConfig struct {
	interval time.Duration
	report   func(Progress)
}

type DirOption func(*dirConfig)

// Reporting makes Dir call report with the progress every interval while archiving,
// and once more when archiving is done.
func Reporting(interval time.Duration, report func(Progress)) DirOption {
	return func(dc *dirConfig) {
		dc.interval = interval
		dc.report = report
	}
}

// Dir archives the directory into "<dir>.tar.gz" and waits for it.
//
// The archive is read back before Dir returns,
// and it is an error when the archive does not hold every byte written.
// When archiving fails, the incomplete archive is removed.
//
// # Returns
//
// - string: path to the archive.
//
// - error
func Dir(ctx context.Context, dir string, options ...DirOption) (string, error) {
	dc := &dirConfig{}
	for _, opt := range options {
		opt(dc)
	}

	dest := filepath.Clean(dir) + Suffix
	f, err := os.Create(dest)
	if err != nil {
		return "", err
	}

	prog := GoTarGz(ctx, dir, f)
	if dc.report != nil && 0 < dc.interval {
		ticker := time.NewTicker(dc.interval)
	WAIT:
		for {
			select {
			case <-prog.Done():
				break WAIT
			case <-ticker.C:
				dc.report(prog)
			}
		}
		ticker.Stop()
	}
	<-prog.Done()
	<-prog.EstimateDone()
	if dc.report != nil {
		dc.report(prog)
	}

	err = prog.Error()
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = verify(dest, prog.ProgressedSize())
	}
	if err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("archiving %s: %w", dir, err)
	}
	return dest, nil
}

// verify reads the archive through and checks the total size of its regular files.
func verify(path string, size int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var total int64
	if err := TarGzWalk(f, func(header *tar.Header, payload io.Reader, err error) error {
		if err != nil {
			return err
		}
		if header.Typeflag != tar.TypeReg {
			return nil
		}
		n, err := io.Copy(io.Discard, payload)
		total += n
		return err
	}); err != nil {
		return err
	}
	if total != size {
		return fmt.Errorf("%s holds %d bytes, but %d bytes are written", path, total, size)
	}
	return nil
}

// findFiles calls callback for each directory and file under from, including itself.
//
// Symlinks are not followed.
func findFiles(from string, callback func(string, fs.FileInfo) error) error {
	stat, err := os.Lstat(from)
	if err != nil {
		return err
	}
	if err := callback(from, stat); err != nil {
		return err
	}
	if !stat.IsDir() {
		return nil
	}

	entries, err := os.ReadDir(from)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := findFiles(filepath.Join(from, entry.Name()), callback); err != nil {
			return err
		}
	}
	return nil
}

// open file as long as ctx is alive.
func ctxOpen(ctx context.Context, p string) (io.ReadCloser, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	return &ctxReader{ctx: ctx, r: f}, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *ctxReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}

func (r *ctxReader) Close() error {
	if closer, ok := r.r.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

type reportingWriter struct {
	dest io.Writer
	prog *progress
}

func (w *reportingWriter) Write(p []byte) (int, error) {
	n, err := w.dest.Write(p)
	w.prog.doneSize.Add(int64(n))
	return n, err
}

// handler of tar entry.
//
// args:
//   - header: header of tar entry
//   - payload: `io.Reader` points the content of the tar entry.
//   - err: error happens when get a tar entry.
//     err is never `io.EOF`.
//     Because walking focuses each entries, not whole tar file.
//
// return:
//
//	any error which caused in a handler.
type TarWalker func(header *tar.Header, payload io.Reader, err error) error

// traverse tar entry.
//
// args:
//   - from io.Reader: Reader object refers *.tar.gz stream.
//     This function does not close `from`.
//   - walker TarWalker: tar entry handler.
//
// return: error, caused reading tar.gz or returned by walker.
//
//	If nothing happens, it returns `nil`.
func TarGzWalk(from io.Reader, walker TarWalker) error {
	gzin, err := gzip.NewReader(from)
	if err != nil {
		return err
	}
	defer gzin.Close()

	tarin := tar.NewReader(gzin)
	for {
		header, err := tarin.Next()
		if err == io.EOF {
			return nil
		}
		if err := walker(header, tarin, err); err != nil {
			return err
		}
		if header == nil {
			return nil
		}
	}
}
