// Package muxpb defines the wire messages for the multiplexer's superset
// RPC surface and the plumbing (codec, generic handlers) needed to serve and
// call it over google.golang.org/grpc without a .proto-generated stub.
//
// No .proto file or protoc-gen-go-grpc output exists anywhere in the
// retrieval pack this service was modeled on, so the messages below are
// plain Go structs serialized through a hand-registered JSON codec (see
// codec.go) instead of protobuf wire format. The RPC shapes mirror the
// worker's native request/response types one-for-one, each wrapped in an
// Envelope carrying the routing Target, exactly as the original tonic
// service's generated MuxFooRequest types did.
package muxpb

// RoutingKind discriminates Target's one-of. The zero value, RoutingUnset,
// represents "no routing specified" and is itself an error case.
type RoutingKind int

const (
	RoutingUnset RoutingKind = iota
	RoutingInstanceName
	RoutingModelID
	RoutingInstanceIndex
)

// Target selects which worker instance a request addresses. Only
// RoutingInstanceName is implemented; the others exist so that clients
// written against the full surface get Unimplemented rather than a decode
// error.
type Target struct {
	Kind          RoutingKind
	InstanceName  string
	ModelID       string
	InstanceIndex uint32
}

// Envelope wraps a native worker request with its routing Target. Every
// Mux*Request type in SPEC_FULL SS6 is an instantiation of this generic.
type Envelope[T any] struct {
	Target  *Target
	Request *T
}

// --- Native worker message shapes -----------------------------------------

type TruncationDirection int32

const (
	TruncationDirectionRight TruncationDirection = iota
	TruncationDirectionLeft
)

type InfoRequest struct{}

type InfoResponse struct {
	ModelID               string
	MaxBatchTokens        uint32
	MaxConcurrentRequests uint32
}

type EmbedRequest struct {
	Inputs              string
	Truncate            bool
	Normalize           bool
	TruncationDirection  TruncationDirection
	PromptName          *string
	Dimensions          *uint32
}

type EmbedResponse struct {
	Embeddings []float32
}

type EmbedSparseRequest struct {
	Inputs              string
	Truncate            bool
	TruncationDirection  TruncationDirection
	PromptName          *string
}

type SparseValue struct {
	Index uint32
	Value float32
}

type EmbedSparseResponse struct {
	SparseEmbeddings []SparseValue
}

type EmbedAllRequest struct {
	Inputs              string
	Truncate            bool
	TruncationDirection  TruncationDirection
	PromptName          *string
}

type EmbedAllResponse struct {
	Embeddings [][]float32
}

type PredictRequest struct {
	Inputs              string
	Truncate            bool
	RawScores           bool
	TruncationDirection  TruncationDirection
}

type PredictResponse struct {
	Scores []float32
}

type PredictPairRequest struct {
	InputsA             string
	InputsB             string
	Truncate            bool
	RawScores           bool
	TruncationDirection  TruncationDirection
}

type PredictPairResponse struct {
	Scores []float32
}

type RerankRequest struct {
	Query               string
	Texts               []string
	Truncate            bool
	RawScores           bool
	ReturnText          bool
	TruncationDirection  TruncationDirection
}

type RerankResult struct {
	Index uint32
	Score float32
	Text  *string
}

type RerankResponse struct {
	Ranks []RerankResult
}

// RerankStreamRequest is one chunk of a bidi-to-unary rerank call: the first
// chunk on a stream carries Query; every chunk (including the first, if it
// also carries one) may carry one candidate Text.
type RerankStreamRequest struct {
	Query *string
	Text  *string
}

type EncodeRequest struct {
	Inputs           string
	AddSpecialTokens bool
	PromptName       *string
}

type EncodeResponse struct {
	Ids    []uint32
	Tokens []string
}

type DecodeRequest struct {
	Ids               []uint32
	SkipSpecialTokens bool
}

type DecodeResponse struct {
	Text string
}

// --- Envelope instantiations -----------------------------------------------

type (
	MuxInfoRequest         = Envelope[InfoRequest]
	MuxEmbedRequest        = Envelope[EmbedRequest]
	MuxEmbedSparseRequest  = Envelope[EmbedSparseRequest]
	MuxEmbedAllRequest     = Envelope[EmbedAllRequest]
	MuxPredictRequest      = Envelope[PredictRequest]
	MuxPredictPairRequest  = Envelope[PredictPairRequest]
	MuxRerankRequest       = Envelope[RerankRequest]
	MuxRerankStreamRequest = Envelope[RerankStreamRequest]
	MuxTokenizeRequest     = Envelope[EncodeRequest]
	MuxDecodeRequest       = Envelope[DecodeRequest]
)
