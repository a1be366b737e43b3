// Package cacheclient provides concrete implementations of the cache-server
// protocol (spec.md §6 "Cache client"; internal/applycache.Client) so the
// memoization driver has something to talk to end-to-end: an in-process
// reference implementation for tests and single-process runs, and a
// net/rpc-based remote variant grounded on internal/storage/rpc.go's
// StoreService/RemoteStore pattern for a real cache server process.
package cacheclient

import (
	"net/rpc"

	"github.com/nicolagi/vesta/internal/applycache"
	"github.com/nicolagi/vesta/internal/fp"
)

// Local wraps applycache.MemoryClient, giving it a name in this package's
// namespace for callers that select a cache client by configuration
// (spec.md §6's [CacheServer] section) rather than importing applycache
// directly.
type Local struct {
	*applycache.MemoryClient
}

// NewLocal constructs an in-process reference cache client.
func NewLocal() *Local {
	return &Local{MemoryClient: applycache.NewMemoryClient()}
}

// wire request/reply pairs for the net/rpc remote variant, one per Client
// method, following internal/storage/rpc.go's GetArgs/GetReply shape.

type FreeVariablesArgs struct{ PK fp.Tag }
type FreeVariablesReply struct {
	FVs     []applycache.FV
	Epoch   uint64
	NoEntry bool
}

type LookupArgs struct {
	PK    fp.Tag
	Epoch uint64
	Tags  []fp.Tag
}
type LookupReply struct {
	Result applycache.LookupResult
}

type AddEntryArgs struct {
	PK          fp.Tag
	FVs         []applycache.FV
	Tags        []fp.Tag
	Pickled     []byte
	ModelSid    int64
	ChildCIs    []int64
	SourceLabel string
}
type AddEntryReply struct{ CI int64 }

type CheckpointArgs struct {
	ModelTag  fp.Tag
	ModelSid  int64
	OrphanCIs []int64
	Final     bool
}
type CheckpointReply struct{}

type RenewLeasesArgs struct{ CIs []int64 }
type RenewLeasesReply struct{ OK bool }

// Service wraps a Client for net/rpc serving, mirroring
// internal/storage/rpc.go's StoreService.
type Service struct {
	delegate applycache.Client
}

// NewService wraps delegate for RPC serving.
func NewService(delegate applycache.Client) *Service {
	return &Service{delegate: delegate}
}

func (s *Service) FreeVariables(args FreeVariablesArgs, reply *FreeVariablesReply) error {
	fvs, epoch, noEntry, err := s.delegate.FreeVariables(args.PK)
	if err != nil {
		return err
	}
	reply.FVs, reply.Epoch, reply.NoEntry = fvs, epoch, noEntry
	return nil
}

func (s *Service) Lookup(args LookupArgs, reply *LookupReply) error {
	res, err := s.delegate.Lookup(args.PK, args.Epoch, args.Tags)
	if err != nil {
		return err
	}
	reply.Result = res
	return nil
}

func (s *Service) AddEntry(args AddEntryArgs, reply *AddEntryReply) error {
	ci, err := s.delegate.AddEntry(args.PK, args.FVs, args.Tags, args.Pickled, args.ModelSid, args.ChildCIs, args.SourceLabel)
	if err != nil {
		return err
	}
	reply.CI = ci
	return nil
}

func (s *Service) Checkpoint(args CheckpointArgs, reply *CheckpointReply) error {
	return s.delegate.Checkpoint(args.ModelTag, args.ModelSid, args.OrphanCIs, args.Final)
}

func (s *Service) RenewLeases(args RenewLeasesArgs, reply *RenewLeasesReply) error {
	ok, err := s.delegate.RenewLeases(args.CIs)
	if err != nil {
		return err
	}
	reply.OK = ok
	return nil
}

// Remote implements applycache.Client by calling a remote Service over
// net/rpc (spec.md §6's cache client, reached via SRPC in the original;
// here a plain net/rpc connection, matching internal/storage/rpc.go's
// RemoteStore).
type Remote struct {
	client *rpc.Client
}

// DialRemote connects to a cache server speaking Service's RPC methods.
func DialRemote(network, address string) (*Remote, error) {
	client, err := rpc.DialHTTP(network, address)
	if err != nil {
		return nil, err
	}
	return &Remote{client: client}, nil
}

func (r *Remote) FreeVariables(pk fp.Tag) ([]applycache.FV, uint64, bool, error) {
	var reply FreeVariablesReply
	err := r.client.Call("Service.FreeVariables", FreeVariablesArgs{PK: pk}, &reply)
	return reply.FVs, reply.Epoch, reply.NoEntry, err
}

func (r *Remote) Lookup(pk fp.Tag, epoch uint64, tags []fp.Tag) (applycache.LookupResult, error) {
	var reply LookupReply
	err := r.client.Call("Service.Lookup", LookupArgs{PK: pk, Epoch: epoch, Tags: tags}, &reply)
	return reply.Result, err
}

func (r *Remote) AddEntry(pk fp.Tag, fvs []applycache.FV, tags []fp.Tag, pickled []byte, modelSid int64, childCIs []int64, sourceLabel string) (int64, error) {
	var reply AddEntryReply
	err := r.client.Call("Service.AddEntry", AddEntryArgs{
		PK: pk, FVs: fvs, Tags: tags, Pickled: pickled,
		ModelSid: modelSid, ChildCIs: childCIs, SourceLabel: sourceLabel,
	}, &reply)
	return reply.CI, err
}

func (r *Remote) Checkpoint(modelTag fp.Tag, modelSid int64, orphanCIs []int64, final bool) error {
	return r.client.Call("Service.Checkpoint", CheckpointArgs{
		ModelTag: modelTag, ModelSid: modelSid, OrphanCIs: orphanCIs, Final: final,
	}, &CheckpointReply{})
}

func (r *Remote) RenewLeases(cis []int64) (bool, error) {
	var reply RenewLeasesReply
	err := r.client.Call("Service.RenewLeases", RenewLeasesArgs{CIs: cis}, &reply)
	return reply.OK, err
}

var _ applycache.Client = (*Remote)(nil)
