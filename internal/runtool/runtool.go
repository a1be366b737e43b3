// Package runtool implements RunTool::do_it (spec.md §6's tool-launch RPC),
// backed by os/exec locally and by net/rpc remotely, grounded on
// internal/storage/rpc.go's StoreService/RemoteStore client/server pattern.
// internal/primruntool calls through the Runner interface; it never shells
// out directly.
package runtool

import (
	"bytes"
	"context"
	"net/rpc"
	"os/exec"
	"syscall"
)

// Request is argv plus the environment a tool invocation runs under
// (spec.md §4.7 step 6: "RunTool::do_it(host, argv, fsroot_longid, wd, env,
// stdin_name, …)").
type Request struct {
	Host    string
	Argv    []string
	Wd      string
	Env     []string
	Stdin   []byte
	Timeout int64 // seconds, 0 = no deadline
}

// Result is what RunTool::do_it returns: exit status, the signal that
// killed the process (0 if none), captured stdout/stderr, and whether a
// core dump file was observed. Local never sets DumpedCore; the core-dump
// check proper is internal/primruntool's match of result-tree names against
// config.C.CoreDumpPattern.
type Result struct {
	Status      int
	Signal      int
	Stdout      []byte
	Stderr      []byte
	DumpedCore  bool
}

// Runner is the abstract tool-launch client.
type Runner interface {
	DoIt(ctx context.Context, req Request) (Result, error)
}

// Local runs the command directly via os/exec, for single-host evaluator
// runs where the chosen host (spec.md §4.8) is the evaluator's own machine.
type Local struct{}

func (Local) DoIt(ctx context.Context, req Request) (Result, error) {
	if len(req.Argv) == 0 {
		return Result{}, nil
	}
	cmd := exec.CommandContext(ctx, req.Argv[0], req.Argv[1:]...)
	cmd.Dir = req.Wd
	cmd.Env = req.Env
	cmd.Stdin = bytes.NewReader(req.Stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err == nil {
		return res, nil
	}
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return res, err
	}
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok {
		if ws.Signaled() {
			res.Signal = int(ws.Signal())
		} else {
			res.Status = ws.ExitStatus()
		}
	} else {
		res.Status = exitErr.ExitCode()
	}
	return res, nil
}

// DoItArgs/DoItReply are the net/rpc wire pair for the remote variant.
type DoItArgs struct{ Req Request }
type DoItReply struct{ Res Result }

// Service wraps a Runner for net/rpc serving, mirroring
// internal/storage/rpc.go's StoreService.
type Service struct {
	delegate Runner
}

func NewService(delegate Runner) *Service {
	return &Service{delegate: delegate}
}

func (s *Service) DoIt(args DoItArgs, reply *DoItReply) error {
	res, err := s.delegate.DoIt(context.Background(), args.Req)
	if err != nil {
		return err
	}
	reply.Res = res
	return nil
}

// Remote dispatches DoIt to a remote host running Service, for the
// multi-host case host selection (spec.md §4.8) actually exists for.
type Remote struct {
	client *rpc.Client
}

func DialRemote(network, address string) (*Remote, error) {
	client, err := rpc.DialHTTP(network, address)
	if err != nil {
		return nil, err
	}
	return &Remote{client: client}, nil
}

func (r *Remote) DoIt(ctx context.Context, req Request) (Result, error) {
	var reply DoItReply
	call := r.client.Go("Service.DoIt", DoItArgs{Req: req}, &reply, nil)
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case res := <-call.Done:
		return reply.Res, res.Error
	}
}

var (
	_ Runner = Local{}
	_ Runner = (*Remote)(nil)
)
