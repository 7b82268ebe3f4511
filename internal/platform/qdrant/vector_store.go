package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/deepmed-backend/internal/pkg/ctxutil"
	"github.com/yungbote/deepmed-backend/internal/pkg/logger"
)

const (
	payloadNamespaceKey = "_dm_namespace"
	payloadVectorIDKey  = "_dm_vector_id"
	maxErrorBodyBytes   = 1024
)

var pointIDNamespaceUUID = uuid.MustParse("6b0f3c8e-9a51-4d0e-8f7d-2c4b1e7a9d35")

type Vector struct {
	ID      string
	Values  []float32
	Payload map[string]any
}

type VectorMatch struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// VectorStore is a namespaced view over one Qdrant collection. Namespaces partition points by a
// payload field, so one collection serves every knowledge base.
type VectorStore interface {
	Upsert(ctx context.Context, namespace string, vectors []Vector) error
	Search(ctx context.Context, namespace string, q []float32, topK int, filter *Filter) ([]VectorMatch, error)
	DeleteIDs(ctx context.Context, namespace string, ids []string) error
	DeleteByFilter(ctx context.Context, namespace string, filter Filter) error
}

type vectorStore struct {
	log      *logger.Logger
	cfg      Config
	baseURL  string
	nsPrefix string
	distance string
	http     *http.Client
}

type qdrantEnvelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
	Time   float64         `json:"time"`
}

type qdrantSearchResultItem struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

func NewVectorStore(ctx context.Context, log *logger.Logger, cfg Config) (VectorStore, error) {
	return newVectorStore(ctx, log, cfg, &http.Client{Timeout: 10 * time.Second})
}

func newVectorStore(ctx context.Context, log *logger.Logger, cfg Config, client *http.Client) (*vectorStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	nsPrefix := strings.TrimSpace(cfg.NamespacePrefix)
	if nsPrefix == "" {
		nsPrefix = DefaultNamespacePrefix
	}
	s := &vectorStore{
		log:      log.With("service", "QdrantVectorStore"),
		cfg:      cfg,
		baseURL:  strings.TrimRight(cfg.URL, "/"),
		nsPrefix: nsPrefix,
		http:     client,
	}
	if err := s.bootstrap(ctx); err != nil {
		return nil, err
	}
	s.log.Info("Qdrant vector store ready",
		"url", s.baseURL,
		"collection", cfg.Collection,
		"namespace_prefix", s.nsPrefix,
		"vector_dim", cfg.VectorDim,
		"distance", s.distance,
	)
	return s, nil
}

func (s *vectorStore) Upsert(ctx context.Context, namespace string, vectors []Vector) error {
	const op = "upsert"
	if len(vectors) == 0 {
		return nil
	}
	qualifiedNS := s.qualifyNamespace(namespace)
	points := make([]map[string]any, 0, len(vectors))
	for _, v := range vectors {
		vectorID := strings.TrimSpace(v.ID)
		if vectorID == "" {
			return opErr(op, OperationErrorValidation, "vector id is required", nil)
		}
		if len(v.Values) != s.cfg.VectorDim {
			return opErr(op, OperationErrorValidation,
				fmt.Sprintf("vector %q dimension mismatch: expected=%d got=%d", vectorID, s.cfg.VectorDim, len(v.Values)), nil)
		}
		payload := clonePayload(v.Payload)
		payload[payloadNamespaceKey] = qualifiedNS
		payload[payloadVectorIDKey] = vectorID
		points = append(points, map[string]any{
			"id":      s.pointID(qualifiedNS, vectorID),
			"vector":  v.Values,
			"payload": payload,
		})
	}
	return s.doJSON(ctx, op, http.MethodPut, s.collectionPath("/points?wait=true"), map[string]any{"points": points}, nil)
}

// Search returns matches best first. Scores are normalised so larger is better; cosine scores are
// clamped to [0, 1].
func (s *vectorStore) Search(ctx context.Context, namespace string, q []float32, topK int, filter *Filter) ([]VectorMatch, error) {
	const op = "search"
	if len(q) == 0 {
		return nil, opErr(op, OperationErrorValidation, "query vector required", nil)
	}
	if len(q) != s.cfg.VectorDim {
		return nil, opErr(op, OperationErrorValidation,
			fmt.Sprintf("query vector dimension mismatch: expected=%d got=%d", s.cfg.VectorDim, len(q)), nil)
	}
	if topK <= 0 {
		topK = 10
	}
	qualifiedNS := s.qualifyNamespace(namespace)
	req := map[string]any{
		"vector":       q,
		"limit":        topK,
		"with_payload": true,
		"with_vector":  false,
		"filter":       filter.toQdrant(qualifiedNS),
	}
	var rawResults []qdrantSearchResultItem
	if err := s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points/search"), req, &rawResults); err != nil {
		return nil, err
	}

	out := make([]VectorMatch, 0, len(rawResults))
	for _, item := range rawResults {
		id := extractVectorID(item)
		if id == "" {
			continue
		}
		payload := item.Payload
		delete(payload, payloadNamespaceKey)
		delete(payload, payloadVectorIDKey)
		out = append(out, VectorMatch{ID: id, Score: s.normalizeScore(item.Score), Payload: payload})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].ID < out[j].ID
		}
		return out[i].Score > out[j].Score
	})
	return out, nil
}

func (s *vectorStore) DeleteIDs(ctx context.Context, namespace string, ids []string) error {
	const op = "delete"
	qualifiedNS := s.qualifyNamespace(namespace)
	pointIDs := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		vectorID := strings.TrimSpace(id)
		if vectorID == "" {
			continue
		}
		pointID := s.pointID(qualifiedNS, vectorID)
		if _, ok := seen[pointID]; ok {
			continue
		}
		seen[pointID] = struct{}{}
		pointIDs = append(pointIDs, pointID)
	}
	if len(pointIDs) == 0 {
		return nil
	}
	return s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points/delete?wait=true"), map[string]any{"points": pointIDs}, nil)
}

func (s *vectorStore) DeleteByFilter(ctx context.Context, namespace string, filter Filter) error {
	const op = "delete_by_filter"
	if len(filter.Must) == 0 {
		return opErr(op, OperationErrorValidation, "refusing to delete a whole namespace without conditions", nil)
	}
	req := map[string]any{"filter": filter.toQdrant(s.qualifyNamespace(namespace))}
	return s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points/delete?wait=true"), req, nil)
}

// bootstrap checks readiness, creates the collection when allowed, and verifies its vector size.
func (s *vectorStore) bootstrap(ctx context.Context) error {
	const op = "bootstrap"
	readyReq, err := http.NewRequestWithContext(ctxutil.Default(ctx), http.MethodGet, s.baseURL+"/readyz", nil)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build ready request failed", err)
	}
	readyResp, err := s.http.Do(readyReq)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant ready check failed", err)
	}
	_ = readyResp.Body.Close()
	if readyResp.StatusCode < 200 || readyResp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: readyResp.StatusCode,
			Message:    fmt.Sprintf("qdrant ready check returned status=%d", readyResp.StatusCode),
		}
	}

	var result struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	}
	err = s.doJSON(ctx, op, http.MethodGet, s.collectionPath(""), nil, &result)
	var oe *OperationError
	if errors.As(err, &oe) && oe.Code == OperationErrorNotFound && s.cfg.CreateCollection {
		create := map[string]any{"vectors": map[string]any{"size": s.cfg.VectorDim, "distance": "Cosine"}}
		if err := s.doJSON(ctx, "create_collection", http.MethodPut, s.collectionPath(""), create, nil); err != nil {
			return err
		}
		s.log.Info("Created qdrant collection", "collection", s.cfg.Collection, "vector_dim", s.cfg.VectorDim)
		s.distance = "Cosine"
		return nil
	}
	if err != nil {
		return err
	}

	size := result.Config.Params.Vectors.Size
	if size != 0 && size != s.cfg.VectorDim {
		return &OperationError{
			Code:      OperationErrorValidation,
			Operation: op,
			Message:   fmt.Sprintf("qdrant collection %q vector size mismatch: expected=%d actual=%d", s.cfg.Collection, s.cfg.VectorDim, size),
		}
	}
	s.distance = strings.TrimSpace(result.Config.Params.Vectors.Distance)
	return nil
}

func (s *vectorStore) doJSON(ctx context.Context, op, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = &buf
	}
	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), method, s.baseURL+path, body)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return opErr(op, OperationErrorDecodeFailed, "read response failed", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return &OperationError{Code: OperationErrorNotFound, Operation: op, StatusCode: resp.StatusCode, Message: truncateBody(raw)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("qdrant http status=%d body=%q", resp.StatusCode, truncateBody(raw)),
		}
	}

	var envelope qdrantEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant envelope failed", err)
	}
	if statusErr := parseEnvelopeStatus(envelope.Status); statusErr != "" {
		return &OperationError{Code: OperationErrorQueryFailed, Operation: op, StatusCode: resp.StatusCode, Message: statusErr}
	}
	if out == nil || len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant result failed", err)
	}
	return nil
}

func classifyHTTPCallError(op, message string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	return opErr(op, OperationErrorTransportFailed, message, err)
}

func parseEnvelopeStatus(raw json.RawMessage) string {
	status := strings.TrimSpace(string(raw))
	if status == "" || status == "null" {
		return ""
	}
	var statusString string
	if err := json.Unmarshal(raw, &statusString); err == nil {
		if strings.EqualFold(statusString, "ok") {
			return ""
		}
		return fmt.Sprintf("qdrant status=%q", statusString)
	}
	var statusObject struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &statusObject); err == nil && strings.TrimSpace(statusObject.Error) != "" {
		return strings.TrimSpace(statusObject.Error)
	}
	return fmt.Sprintf("qdrant status=%s", status)
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}

func clonePayload(in map[string]any) map[string]any {
	out := make(map[string]any, len(in)+2)
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s *vectorStore) qualifyNamespace(namespace string) string {
	ns := strings.TrimSpace(namespace)
	if ns == "" {
		return s.nsPrefix
	}
	return s.nsPrefix + ":" + ns
}

// pointID is deterministic so re-upserting a vector overwrites the same point.
func (s *vectorStore) pointID(qualifiedNS, vectorID string) string {
	return uuid.NewSHA1(pointIDNamespaceUUID, []byte(qualifiedNS+"|"+vectorID)).String()
}

func (s *vectorStore) collectionPath(suffix string) string {
	return "/collections/" + s.cfg.Collection + suffix
}

func extractVectorID(item qdrantSearchResultItem) string {
	if payloadID, ok := item.Payload[payloadVectorIDKey].(string); ok {
		if id := strings.TrimSpace(payloadID); id != "" {
			return id
		}
	}
	return decodePointID(item.ID)
}

func decodePointID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var idString string
	if err := json.Unmarshal(raw, &idString); err == nil {
		return strings.TrimSpace(idString)
	}
	var idNumber int64
	if err := json.Unmarshal(raw, &idNumber); err == nil {
		return fmt.Sprintf("%d", idNumber)
	}
	return strings.TrimSpace(string(raw))
}

func (s *vectorStore) normalizeScore(score float64) float64 {
	switch strings.ToLower(strings.TrimSpace(s.distance)) {
	case "euclid", "manhattan":
		if score < 0 {
			score = -score
		}
		return 1.0 / (1.0 + score)
	default:
		if score < 0 {
			return 0
		}
		if score > 1 {
			return 1
		}
		return score
	}
}
