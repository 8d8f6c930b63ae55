package halcyon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"halcyon-cms/pkg/ctxlog"
)

// FileDatasource stores one record per file under root/{directory}/{fileName}.
type FileDatasource struct {
	fs            billy.Filesystem
	root          string
	skipMalformed bool
}

type FileOption func(*FileDatasource)

// WithSkipMalformed makes List log and skip files that fail to parse instead
// of failing the whole listing.
func WithSkipMalformed() FileOption {
	return func(d *FileDatasource) { d.skipMalformed = true }
}

// NewFileDatasource opens a datasource rooted at a directory on disk.
func NewFileDatasource(root string, opts ...FileOption) *FileDatasource {
	d := NewFileDatasourceFS(osfs.New(root), opts...)
	d.root = root
	return d
}

// NewFileDatasourceFS uses an arbitrary billy filesystem, e.g. memfs in tests.
func NewFileDatasourceFS(fs billy.Filesystem, opts ...FileOption) *FileDatasource {
	d := &FileDatasource{fs: fs}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Root is the on-disk root, empty for non-OS filesystems.
func (d *FileDatasource) Root() string { return d.root }

func (d *FileDatasource) List(ctx context.Context, dir Directory) ([]Record, error) {
	var names []string
	if err := d.collect(dir, "", dir.MaxNesting, &names); err != nil {
		return nil, err
	}
	sort.Strings(names)

	records := make([]Record, 0, len(names))
	for _, name := range names {
		rec, err := d.read(dir, name)
		if err != nil {
			if d.skipMalformed && !strictListing(ctx) && errors.Is(err, ErrMalformedDocument) {
				ctxlog.FromContext(ctx).Warn("skipping malformed template", "dir", dir.Name, "file", name, "error", err)
				continue
			}
			return nil, err
		}
		if rec != nil {
			records = append(records, *rec)
		}
	}
	return records, nil
}

// collect gathers listable file names, descending at most depth subdirectories.
func (d *FileDatasource) collect(dir Directory, rel string, depth int, out *[]string) error {
	entries, err := d.fs.ReadDir(path.Join(dir.Name, rel))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("halcyon: read dir %s: %w", path.Join(dir.Name, rel), err)
	}
	for _, entry := range entries {
		name := path.Join(rel, entry.Name())
		if entry.IsDir() {
			if depth > 0 {
				if err := d.collect(dir, name, depth-1, out); err != nil {
					return err
				}
			}
			continue
		}
		if strings.HasPrefix(entry.Name(), ".") || !hasAllowedExtension(name, dir.Extensions) {
			continue
		}
		if ValidateFileName(name, dir.MaxNesting) != nil {
			continue
		}
		*out = append(*out, name)
	}
	return nil
}

func (d *FileDatasource) Find(ctx context.Context, dir Directory, fileName string) (*Record, error) {
	if err := checkKey(dir, fileName); err != nil {
		return nil, err
	}
	return d.read(dir, fileName)
}

func (d *FileDatasource) read(dir Directory, fileName string) (*Record, error) {
	p := path.Join(dir.Name, fileName)
	f, err := d.fs.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("halcyon: open %s: %w", p, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("halcyon: read %s: %w", p, err)
	}
	info, err := d.fs.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("halcyon: stat %s: %w", p, err)
	}

	doc, err := dir.codec().Parse(data)
	if err != nil {
		var merr *MalformedDocumentError
		if errors.As(err, &merr) {
			return nil, &MalformedDocumentError{Path: p, Err: merr.Err}
		}
		return nil, &MalformedDocumentError{Path: p, Err: err}
	}
	return &Record{
		FileName: fileName,
		Document: doc,
		Content:  string(data),
		MTime:    info.ModTime(),
	}, nil
}

func (d *FileDatasource) Insert(ctx context.Context, dir Directory, rec Record) error {
	if err := checkKey(dir, rec.FileName); err != nil {
		return err
	}
	data, err := dir.codec().Serialize(rec.Document)
	if err != nil {
		return err
	}
	p := path.Join(dir.Name, rec.FileName)
	if err := d.fs.MkdirAll(path.Dir(p), 0o755); err != nil {
		return fmt.Errorf("halcyon: create directory for %s: %w", p, err)
	}
	return d.createExclusive(p, data)
}

// Update rewrites a record. When the file name changes the new file is fully
// written before the old one is removed, and an existing target is never
// overwritten.
func (d *FileDatasource) Update(ctx context.Context, dir Directory, oldFileName string, rec Record) error {
	if err := checkKey(dir, oldFileName); err != nil {
		return err
	}
	if err := checkKey(dir, rec.FileName); err != nil {
		return err
	}
	data, err := dir.codec().Serialize(rec.Document)
	if err != nil {
		return err
	}

	oldPath := path.Join(dir.Name, oldFileName)
	newPath := path.Join(dir.Name, rec.FileName)
	if oldPath == newPath {
		return d.replace(newPath, data)
	}

	if newInfo, err := d.fs.Stat(newPath); err == nil {
		oldInfo, oerr := d.fs.Stat(oldPath)
		if oerr != nil || !strings.EqualFold(oldPath, newPath) || !os.SameFile(oldInfo, newInfo) {
			return &FileExistsError{Path: newPath}
		}
		// Case-only rename on case-insensitive storage: both names are the same file.
		return d.renameCase(oldPath, newPath, data)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("halcyon: stat %s: %w", newPath, err)
	}

	if err := d.fs.MkdirAll(path.Dir(newPath), 0o755); err != nil {
		return fmt.Errorf("halcyon: create directory for %s: %w", newPath, err)
	}
	if err := d.createExclusive(newPath, data); err != nil {
		return err
	}
	if err := d.fs.Remove(oldPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("halcyon: remove %s after rename: %w", oldPath, err)
	}
	return nil
}

func (d *FileDatasource) Delete(ctx context.Context, dir Directory, fileName string) error {
	if err := checkKey(dir, fileName); err != nil {
		return err
	}
	p := path.Join(dir.Name, fileName)
	if err := d.fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("halcyon: remove %s: %w", p, err)
	}
	return nil
}

func (d *FileDatasource) LastModified(ctx context.Context, dir Directory, fileName string) (time.Time, error) {
	if err := checkKey(dir, fileName); err != nil {
		return time.Time{}, err
	}
	info, err := d.fs.Stat(path.Join(dir.Name, fileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

func (d *FileDatasource) createExclusive(p string, data []byte) error {
	f, err := d.fs.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return &FileExistsError{Path: p}
		}
		return fmt.Errorf("halcyon: create %s: %w", p, err)
	}
	_, werr := f.Write(data)
	cerr := f.Close()
	if werr != nil || cerr != nil {
		_ = d.fs.Remove(p)
		return fmt.Errorf("halcyon: write %s: %w", p, errors.Join(werr, cerr))
	}
	return nil
}

// replace writes data to a temp file next to p and renames it into place.
func (d *FileDatasource) replace(p string, data []byte) error {
	tmp, err := d.writeTemp(path.Dir(p), data)
	if err != nil {
		return err
	}
	if err := d.fs.Rename(tmp, p); err != nil {
		_ = d.fs.Remove(tmp)
		return fmt.Errorf("halcyon: replace %s: %w", p, err)
	}
	return nil
}

// renameCase moves the file to its new spelling before rewriting it, so the
// record exists under one of the two names at every step.
func (d *FileDatasource) renameCase(oldPath, newPath string, data []byte) error {
	if err := d.fs.Rename(oldPath, newPath); err != nil {
		return fmt.Errorf("halcyon: rename %s to %s: %w", oldPath, newPath, err)
	}
	return d.replace(newPath, data)
}

func (d *FileDatasource) writeTemp(dir string, data []byte) (string, error) {
	if err := d.fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("halcyon: create directory %s: %w", dir, err)
	}
	f, err := d.fs.TempFile(dir, ".halcyon-")
	if err != nil {
		return "", fmt.Errorf("halcyon: temp file in %s: %w", dir, err)
	}
	name := f.Name()
	_, werr := f.Write(data)
	cerr := f.Close()
	if werr != nil || cerr != nil {
		_ = d.fs.Remove(name)
		return "", fmt.Errorf("halcyon: write temp file: %w", errors.Join(werr, cerr))
	}
	return name, nil
}

func checkKey(dir Directory, fileName string) error {
	if err := ValidateFileName(fileName, dir.MaxNesting); err != nil {
		return err
	}
	if !hasAllowedExtension(fileName, dir.Extensions) {
		_, ext := SplitExtension(fileName)
		return &InvalidExtensionError{Extension: ext, Allowed: dir.Extensions}
	}
	return nil
}
