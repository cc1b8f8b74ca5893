// Package orchestrator implements the Service Orchestrator (spec.md §4.7):
// it glues endpoint parsing, SSH/SFTP session setup, manifest resume
// decisions, and the Transfer Engine into the single call a CLI invocation
// makes.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/acolita/fastcp/internal/chunkplan"
	"github.com/acolita/fastcp/internal/endpoint"
	"github.com/acolita/fastcp/internal/manifest"
	"github.com/acolita/fastcp/internal/ports"
	"github.com/acolita/fastcp/internal/progress"
	"github.com/acolita/fastcp/internal/security"
	fastcpsftp "github.com/acolita/fastcp/internal/sftp"
	fastcpssh "github.com/acolita/fastcp/internal/ssh"
	"github.com/acolita/fastcp/internal/transfer"
	"github.com/acolita/fastcp/internal/xerrors"
	gossh "golang.org/x/crypto/ssh"
)

// Service runs transfers end to end. One Service can drive many sequential
// Run calls; it holds no per-transfer state between them.
type Service struct {
	fsys      ports.FileSystem
	store     *manifest.Store
	clock     ports.Clock
	keyring   *security.KeyringStore
	authLimit *security.AuthRateLimiter
	pools     *fastcpssh.PoolManager
	logger    *slog.Logger
}

// New builds a Service. keyring may be nil to disable credential caching.
func New(fsys ports.FileSystem, store *manifest.Store, clock ports.Clock, keyring *security.KeyringStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		fsys:      fsys,
		store:     store,
		clock:     clock,
		keyring:   keyring,
		authLimit: security.NewAuthRateLimiter(security.DefaultMaxAuthFailures, security.DefaultAuthLockoutDuration),
		pools:     fastcpssh.NewPoolManager(fastcpssh.DefaultPoolConfig()),
		logger:    logger,
	}
}

// RunOptions carries the per-invocation pieces Run needs beyond the
// transfer.Config tunables: how to authenticate, which host key policy to
// apply, and where progress updates go.
type RunOptions struct {
	Auth            fastcpssh.AuthConfig
	Port            int // 0 means use the endpoint's own port (default 22)
	HostKeyCallback gossh.HostKeyCallback
	KnownHostsPath  string
	ProgressSink    progress.Sink
}

// Run executes spec.md §4.7's seven steps for one source/destination pair.
func (s *Service) Run(ctx context.Context, srcRaw, dstRaw string, cfg transfer.Config, opts RunOptions) (transfer.Result, error) {
	src, dst, err := s.parseEndpoints(srcRaw, dstRaw)
	if err != nil {
		return transfer.Result{}, err
	}

	var client *fastcpssh.Client
	if !src.IsLocal || !dst.IsLocal {
		remote := src
		if src.IsLocal {
			remote = dst
		}
		client, err = s.dialRemote(ctx, remote, cfg, opts)
		if err != nil {
			return transfer.Result{}, err
		}
		defer client.Close()
	}

	src, err = s.resolveAbsolute(src, client)
	if err != nil {
		return transfer.Result{}, err
	}
	dst, err = s.resolveAbsolute(dst, client)
	if err != nil {
		return transfer.Result{}, err
	}

	fileSize, fileMtime, err := s.statSource(src, client)
	if err != nil {
		return transfer.Result{}, xerrors.New(xerrors.ConnectError, src.String(), fmt.Errorf("stat source: %w", err))
	}

	if err := s.ensureDestDir(dst, client); err != nil {
		return transfer.Result{}, xerrors.New(xerrors.ConnectError, dst.String(), fmt.Errorf("prepare destination directory: %w", err))
	}

	taskID := endpoint.TaskID(src, dst)

	if err := s.store.Lock(taskID); err != nil {
		var held *manifest.LockHeldError
		if errors.As(err, &held) {
			return transfer.Result{}, xerrors.New(xerrors.ConcurrentTransfer, taskID, err)
		}
		return transfer.Result{}, xerrors.New(xerrors.Unknown, taskID, err)
	}
	defer s.store.Unlock(taskID)

	cfgRecord := manifest.ConfigRecord{Parallel: cfg.Parallel, Aria2: cfg.Aria2, ChunkSize: cfg.ChunkSize}

	m, chunks, err := s.planOrResume(taskID, src, dst, fileSize, fileMtime, cfg, cfgRecord)
	if err != nil {
		return transfer.Result{}, err
	}

	srcRW, dstRW, err := s.openEndpoints(src, dst, taskID, client)
	if err != nil {
		return transfer.Result{}, xerrors.New(xerrors.ConnectError, taskID, err)
	}
	defer srcRW.Close()
	defer dstRW.Close()

	tracker := progress.New(taskID, fileSize, opts.ProgressSink, s.clock)
	defer tracker.Stop()

	eng := transfer.New(taskID, srcRW, dstRW, chunks, cfg, m, s.store, tracker, s.clock)
	result, err := eng.Run(ctx)
	if err != nil {
		return transfer.Result{}, err
	}

	if err := s.store.Cleanup(taskID); err != nil {
		s.logger.Warn("manifest cleanup after completion failed", slog.String("task_id", taskID), slog.String("error", err.Error()))
	}

	return result, nil
}

func (s *Service) parseEndpoints(srcRaw, dstRaw string) (endpoint.Endpoint, endpoint.Endpoint, error) {
	src, err := endpoint.Parse(srcRaw)
	if err != nil {
		return endpoint.Endpoint{}, endpoint.Endpoint{}, err
	}
	dst, err := endpoint.Parse(dstRaw)
	if err != nil {
		return endpoint.Endpoint{}, endpoint.Endpoint{}, err
	}
	if src.IsLocal == dst.IsLocal {
		return endpoint.Endpoint{}, endpoint.Endpoint{}, xerrors.New(xerrors.ParseError, srcRaw+" -> "+dstRaw,
			errors.New("exactly one of src/dst must be a remote [user@]host:path"))
	}

	src, err = endpoint.ExpandLocal(src, s.fsys)
	if err != nil {
		return endpoint.Endpoint{}, endpoint.Endpoint{}, xerrors.New(xerrors.ParseError, srcRaw, err)
	}
	dst, err = endpoint.ExpandLocal(dst, s.fsys)
	if err != nil {
		return endpoint.Endpoint{}, endpoint.Endpoint{}, xerrors.New(xerrors.ParseError, dstRaw, err)
	}
	return src, dst, nil
}

func (s *Service) dialRemote(ctx context.Context, remote endpoint.Endpoint, cfg transfer.Config, opts RunOptions) (*fastcpssh.Client, error) {
	port := remote.Port
	if opts.Port != 0 {
		port = opts.Port
	}
	if port == 0 {
		port = 22
	}

	authCfg := opts.Auth
	authCfg.Host = remote.Host
	if authCfg.User == "" {
		authCfg.User = remote.User
	}
	if authCfg.User == "" {
		return nil, xerrors.New(xerrors.AuthError, remote.String(), errors.New("no user specified for remote endpoint"))
	}

	if locked, remaining := s.authLimit.IsLocked(authCfg.Host, authCfg.User); locked {
		return nil, xerrors.New(xerrors.AuthError, remote.String(),
			fmt.Errorf("too many recent authentication failures for %s@%s, locked out for %s", authCfg.User, authCfg.Host, remaining.Round(time.Second)))
	}

	authCfg = fastcpssh.ResolveCachedAuth(authCfg, s.keyring)
	methods, err := fastcpssh.BuildAuthMethods(authCfg)
	if err != nil {
		return nil, xerrors.New(xerrors.AuthError, remote.String(), err)
	}

	hostKeyCallback := opts.HostKeyCallback
	if hostKeyCallback == nil {
		hostKeyCallback, err = fastcpssh.BuildHostKeyCallback(opts.KnownHostsPath)
		if err != nil {
			return nil, xerrors.New(xerrors.AuthError, remote.String(), err)
		}
	}

	clientOpts := fastcpssh.ClientOptions{
		Host:            remote.Host,
		Port:            port,
		User:            authCfg.User,
		AuthMethods:     methods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         cfg.Timeout,
		Clock:           s.clock,
	}

	pool := s.pools.GetPool(clientOpts)
	conn, err := pool.Get(ctx)
	if err != nil {
		if isAuthFailure(err) {
			s.authLimit.RecordFailure(authCfg.Host, authCfg.User)
			return nil, xerrors.New(xerrors.AuthError, remote.String(), err)
		}
		return nil, xerrors.New(xerrors.ConnectError, remote.String(), err)
	}
	s.authLimit.RecordSuccess(authCfg.Host, authCfg.User)

	fastcpssh.CacheAuth(authCfg, s.keyring)
	return fastcpssh.NewPooledClient(conn, pool, remote.Host, port, s.clock), nil
}

// isAuthFailure reports whether err came from SSH rejecting every offered
// auth method, as opposed to a network-level connect failure. x/crypto/ssh
// does not export a typed error for this; it surfaces as a handshake error
// wrapping the string below.
func isAuthFailure(err error) bool {
	return strings.Contains(err.Error(), "unable to authenticate")
}

// Close shuts down every per-host SSH connection pool the service has
// opened. Callers should defer this once per process, after all Run calls
// have returned.
func (s *Service) Close() {
	s.pools.CloseAll()
}

func (s *Service) resolveAbsolute(e endpoint.Endpoint, client *fastcpssh.Client) (endpoint.Endpoint, error) {
	if e.IsLocal {
		abs, err := filepath.Abs(e.Path)
		if err != nil {
			return e, fmt.Errorf("resolve absolute path for %s: %w", e.Path, err)
		}
		e.Path = abs
		return e, nil
	}

	sftpClient, err := client.SFTPClient()
	if err != nil {
		return e, err
	}
	real, err := sftpClient.RealPath(e.Path)
	if err != nil {
		// A destination that doesn't exist yet may still fail RealPath on
		// some servers; fall back to the path as given rather than failing
		// the whole transfer over a cosmetic canonicalization step.
		return e, nil
	}
	e.Path = real
	return e, nil
}

func (s *Service) statSource(src endpoint.Endpoint, client *fastcpssh.Client) (size int64, mtime float64, err error) {
	if src.IsLocal {
		info, statErr := s.fsys.Stat(src.Path)
		if statErr != nil {
			return 0, 0, statErr
		}
		return info.Size(), float64(info.ModTime().UnixNano()) / 1e9, nil
	}
	sftpClient, sErr := client.SFTPClient()
	if sErr != nil {
		return 0, 0, sErr
	}
	info, statErr := sftpClient.Stat(src.Path)
	if statErr != nil {
		return 0, 0, statErr
	}
	return info.Size(), float64(info.ModTime().UnixNano()) / 1e9, nil
}

func (s *Service) ensureDestDir(dst endpoint.Endpoint, client *fastcpssh.Client) error {
	dir := filepath.Dir(dst.Path)
	if dst.IsLocal {
		return s.fsys.MkdirAll(dir, 0o755)
	}
	sftpClient, err := client.SFTPClient()
	if err != nil {
		return err
	}
	return sftpClient.MkdirAll(dir)
}

// planOrResume implements spec.md §4.7 step 4: adopt a valid manifest's
// chunk plan, or start fresh when forced, stale, or resume is disabled.
func (s *Service) planOrResume(taskID string, src, dst endpoint.Endpoint, fileSize int64, fileMtime float64, cfg transfer.Config, cfgRecord manifest.ConfigRecord) (*manifest.Manifest, []chunkplan.Chunk, error) {
	now := float64(s.clock.Now().UnixNano()) / 1e9

	fresh := func() (*manifest.Manifest, []chunkplan.Chunk, error) {
		m := &manifest.Manifest{
			Version:   manifest.Version,
			TaskID:    taskID,
			Src:       endpointRecord(src),
			Dst:       endpointRecord(dst),
			FileSize:  fileSize,
			FileMtime: fileMtime,
			Config:    cfgRecord,
			Status:    manifest.StatusRunning,
			CreatedAt: now,
			UpdatedAt: now,
		}
		chunks := chunkplan.Plan(fileSize, cfg.PlanParams())
		return m, chunks, nil
	}

	if cfg.Force {
		if err := s.store.Cleanup(taskID); err != nil {
			return nil, nil, xerrors.New(xerrors.Unknown, taskID, fmt.Errorf("force cleanup: %w", err))
		}
		return fresh()
	}

	if !cfg.Resume {
		return fresh()
	}

	existing, err := s.store.Load(taskID)
	if err != nil {
		return nil, nil, xerrors.New(xerrors.Unknown, taskID, fmt.Errorf("load manifest: %w", err))
	}
	if existing == nil {
		return fresh()
	}

	if !s.store.Validate(existing, fileSize, fileMtime) {
		s.logger.Info("manifest stale, restarting transfer from scratch", slog.String("task_id", taskID))
		if err := s.store.Cleanup(taskID); err != nil {
			return nil, nil, xerrors.New(xerrors.Unknown, taskID, fmt.Errorf("stale manifest cleanup: %w", err))
		}
		return fresh()
	}

	chunks := chunksFromRecords(existing.Chunks)
	if !chunkplan.Validate(chunks, fileSize) {
		s.logger.Warn("adopted chunk plan failed validation, restarting from scratch", slog.String("task_id", taskID))
		if err := s.store.Cleanup(taskID); err != nil {
			return nil, nil, xerrors.New(xerrors.Unknown, taskID, fmt.Errorf("invalid plan cleanup: %w", err))
		}
		return fresh()
	}

	existing.Status = manifest.StatusRunning
	existing.UpdatedAt = now
	return existing, chunks, nil
}

func (s *Service) openEndpoints(src, dst endpoint.Endpoint, taskID string, client *fastcpssh.Client) (transfer.RangeReadWriter, transfer.RangeReadWriter, error) {
	var srcRW, dstRW transfer.RangeReadWriter
	var err error

	if src.IsLocal {
		srcRW, err = transfer.NewLocalSource(s.fsys, src.Path)
	} else {
		var sftpClient *fastcpsftp.Client
		sftpClient, err = client.SFTPClient()
		if err == nil {
			srcRW, err = transfer.NewRemoteSource(sftpClient, src.Path)
		}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open source: %w", err)
	}

	if dst.IsLocal {
		dstRW, err = transfer.NewLocalDestination(s.fsys, dst.Path, taskID)
	} else {
		var sftpClient *fastcpsftp.Client
		sftpClient, err = client.SFTPClient()
		if err == nil {
			dstRW, err = transfer.NewRemoteDestination(sftpClient, dst.Path, taskID)
		}
	}
	if err != nil {
		srcRW.Close()
		return nil, nil, fmt.Errorf("open destination: %w", err)
	}

	return srcRW, dstRW, nil
}

func endpointRecord(e endpoint.Endpoint) manifest.EndpointRecord {
	return manifest.EndpointRecord{Path: e.Path, IsLocal: e.IsLocal, Host: e.Host, User: e.User, Port: e.Port}
}

func chunksFromRecords(records []manifest.ChunkRecord) []chunkplan.Chunk {
	chunks := make([]chunkplan.Chunk, len(records))
	for i, r := range records {
		chunks[i] = chunkplan.Chunk{
			Index:    r.Index,
			Offset:   r.Offset,
			Size:     r.Size,
			Status:   chunkStatusFromRecord(r.Status),
			SHA256:   r.SHA256,
			Attempts: r.Attempts,
			Error:    r.Error,
		}
	}
	return chunks
}

func chunkStatusFromRecord(s manifest.ChunkStatus) chunkplan.Status {
	switch s {
	case manifest.ChunkCompleted:
		return chunkplan.Completed
	case manifest.ChunkInProgress:
		// An in-flight chunk at the moment of interruption has no durable
		// guarantee over its bytes (spec.md §5): treat it as pending so it
		// gets rewritten from scratch.
		return chunkplan.Pending
	case manifest.ChunkFailed:
		return chunkplan.Pending
	default:
		return chunkplan.Pending
	}
}
