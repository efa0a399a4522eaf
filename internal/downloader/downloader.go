package downloader

import (
	"archive/zip"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/frederic-klein/fml/internal/mod"
	"github.com/frederic-klein/fml/internal/retry"
)

// Credentials authenticate archive downloads against the portal.
type Credentials struct {
	Username string
	Token    string
}

// ProgressFunc receives the download progress in percent.
type ProgressFunc func(percent uint8)

// Job is one release to download into DestDir.
type Job struct {
	Name     string
	Release  mod.Release
	DestDir  string
	Progress ProgressFunc // optional
}

// IntegrityMismatchError is returned when the downloaded bytes do not hash
// to the checksum the portal declared. The file has already been removed.
type IntegrityMismatchError struct {
	File     string
	Expected string
	Actual   string
}

func (e *IntegrityMismatchError) Error() string {
	return fmt.Sprintf("%s: sha1 mismatch: expected %s, got %s", e.File, e.Expected, e.Actual)
}

// CorruptArchiveError is returned when the download is not a readable zip.
// The file has already been removed.
type CorruptArchiveError struct {
	File string
	Err  error
}

func (e *CorruptArchiveError) Error() string {
	return fmt.Sprintf("%s: corrupt archive: %v", e.File, e.Err)
}

func (e *CorruptArchiveError) Unwrap() error {
	return e.Err
}

// DefaultTimeout bounds one archive transfer, body included.
const DefaultTimeout = 10 * time.Minute

// Downloader fetches and verifies release archives. It is not safe to run
// two jobs with the same destination file concurrently.
type Downloader struct {
	baseURL *url.URL
	creds   Credentials
	client  *http.Client
	retry   retry.Policy
	logger  *log.Logger
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(d *Downloader) { d.client = hc }
}

// WithRetry sets the retry policy for transient transfer failures.
func WithRetry(p retry.Policy) Option {
	return func(d *Downloader) { d.retry = p }
}

// NewDownloader creates a downloader for archives served by the portal at baseURL.
func NewDownloader(baseURL string, creds Credentials, logger *log.Logger, opts ...Option) (*Downloader, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing portal url: %w", err)
	}
	d := &Downloader{
		baseURL: u,
		creds:   creds,
		client:  &http.Client{Timeout: DefaultTimeout},
		retry:   retry.Default,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// URL returns the authenticated download URL for r. Credentials are only
// ever attached to URLs on the portal host.
func (d *Downloader) URL(r mod.Release) (string, error) {
	ref, err := url.Parse(r.DownloadURL)
	if err != nil {
		return "", fmt.Errorf("parsing download url %q: %w", r.DownloadURL, err)
	}
	if r.DownloadURL == "" {
		return "", fmt.Errorf("release %s has no download url", r.FileName)
	}

	u := d.baseURL.ResolveReference(ref)
	if u.Host != d.baseURL.Host {
		return "", fmt.Errorf("refusing to send credentials to %s", u.Host)
	}

	q := u.Query()
	q.Set("username", d.creds.Username)
	q.Set("token", d.creds.Token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// DestPath returns where job's archive is stored.
func DestPath(job Job) (string, error) {
	name := job.Release.FileName
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("unsafe file name %q", name)
	}
	return filepath.Join(job.DestDir, name), nil
}

// Fetch downloads job's release, verifies it and returns the path of the
// verified archive. On any failure no file is left at the destination.
func (d *Downloader) Fetch(ctx context.Context, job Job) (string, error) {
	destPath, err := DestPath(job)
	if err != nil {
		return "", err
	}

	// An archive that is already present and verifies is reused
	if _, err := os.Stat(destPath); err == nil {
		if err := verify(destPath, job.Release.SHA1); err == nil {
			d.logger.Debug("Already downloaded", "file", destPath)
			report(job.Progress, 100)
			return destPath, nil
		}
	}

	if err := os.MkdirAll(job.DestDir, 0755); err != nil {
		return "", fmt.Errorf("creating directory: %w", err)
	}

	downloadURL, err := d.URL(job.Release)
	if err != nil {
		return "", err
	}

	// Write to temp file first, then rename
	tmpPath := destPath + ".tmp"
	d.logger.Info("Downloading", "mod", job.Name, "version", job.Release.Version, "file", job.Release.FileName)
	err = retry.Do(ctx, d.retry, d.logger, job.Release.FileName, func() error {
		return d.downloadOne(ctx, downloadURL, tmpPath, job.Progress)
	})
	if err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("downloading %s: %w", job.Release.FileName, err)
	}

	if err := verify(tmpPath, job.Release.SHA1); err != nil {
		os.Remove(tmpPath)
		return "", err
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("renaming file: %w", err)
	}
	return destPath, nil
}

func (d *Downloader) downloadOne(ctx context.Context, downloadURL, tmpPath string, progress ProgressFunc) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return retry.Permanent(fmt.Errorf("creating request: %w", err))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		// never log or return the url, it carries the token
		return fmt.Errorf("requesting archive: %w", redact(err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return retry.Permanent(fmt.Errorf("HTTP %d", resp.StatusCode))
	}

	out, err := os.Create(tmpPath)
	if err != nil {
		return retry.Permanent(fmt.Errorf("creating file: %w", err))
	}

	pw := &progressWriter{total: resp.ContentLength, fn: progress}
	report(progress, 0)
	_, err = io.Copy(io.MultiWriter(out, pw), resp.Body)
	closeErr := out.Close()
	if err != nil {
		return fmt.Errorf("writing file: %w", redact(err))
	}
	if closeErr != nil {
		return fmt.Errorf("closing file: %w", closeErr)
	}
	return nil
}

// verify checks the sha1 (when declared) and that the file opens as a zip.
func verify(path, expectedSHA1 string) error {
	name := filepath.Base(path)
	if expectedSHA1 != "" {
		actual, err := fileSHA1(path)
		if err != nil {
			return fmt.Errorf("hashing %s: %w", name, err)
		}
		if !strings.EqualFold(actual, expectedSHA1) {
			return &IntegrityMismatchError{File: strings.TrimSuffix(name, ".tmp"), Expected: expectedSHA1, Actual: actual}
		}
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return &CorruptArchiveError{File: strings.TrimSuffix(name, ".tmp"), Err: err}
	}
	return zr.Close()
}

func fileSHA1(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// redact strips the query string, which holds the token, from url errors.
func redact(err error) error {
	if ue, ok := err.(*url.Error); ok {
		if u, perr := url.Parse(ue.URL); perr == nil {
			u.RawQuery = ""
			return &url.Error{Op: ue.Op, URL: u.String(), Err: ue.Err}
		}
	}
	return err
}

type progressWriter struct {
	total   int64
	written int64
	last    uint8
	fn      ProgressFunc
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	if pct := percent(p.written, p.total); pct != p.last {
		p.last = pct
		report(p.fn, pct)
	}
	return len(b), nil
}

// percent of done over total. An unknown total counts as 1 so the result
// is meaningless but safe.
func percent(done, total int64) uint8 {
	if total <= 0 {
		total = 1
	}
	pct := done * 100 / total
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}
	return uint8(pct)
}

func report(fn ProgressFunc, pct uint8) {
	if fn != nil {
		fn(pct)
	}
}
