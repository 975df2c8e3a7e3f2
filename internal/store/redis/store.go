package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/redis/rueidis"

	"github.com/aramb-dev/agentkit/internal/domain"
	"github.com/aramb-dev/agentkit/internal/store"
)

var _ store.Store = (*Store)(nil)
var _ store.ChunkLister = (*Store)(nil)

// Key layout (prefix configurable):
//
//	<p>ns                      SET of namespace names
//	<p>docs:<ns>               HASH document id -> source filename
//	<p>chunks:<ns>             HASH document id -> chunk count
//	<p>chunk:<ns>:<doc>-<i>    HASH one chunk record (+ vector blob)
//	<p>idx:<ns>                FT index over <p>chunk:<ns>:*
//
// Chunk ordinals within a document are contiguous 0..n-1 (the chunker emits
// them that way), so a per-document count is enough to enumerate chunk keys.
type Store struct {
	client rueidis.Client
	prefix string

	// Per-namespace write serialization within this process. Multi-key upsert
	// and delete are not atomic in Redis; cross-process coordination is the
	// deployment's concern.
	mu      sync.Mutex
	writers map[string]*sync.Mutex
}

func newStore(client rueidis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix, writers: make(map[string]*sync.Mutex)}
}

func (s *Store) nsKey() string                  { return s.prefix + "ns" }
func (s *Store) docsKey(ns string) string       { return s.prefix + "docs:" + ns }
func (s *Store) countsKey(ns string) string     { return s.prefix + "chunks:" + ns }
func (s *Store) chunkPrefix(ns string) string   { return s.prefix + "chunk:" + ns + ":" }
func (s *Store) indexKey(ns string) string      { return s.prefix + "idx:" + ns }
func (s *Store) chunkKey(ns, id string) string  { return s.chunkPrefix(ns) + id }

func (s *Store) writerFor(ns string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.writers[ns]
	if !ok {
		m = &sync.Mutex{}
		s.writers[ns] = m
	}
	return m
}

// Upsert replaces each document's chunk set within the namespace, creating the
// namespace and its FT index on first write.
func (s *Store) Upsert(ctx context.Context, namespace string, chunks []domain.EmbeddedChunk) error {
	if err := domain.ValidateNamespace(namespace); err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	if len(chunks) == 0 {
		return nil
	}

	dim := len(chunks[0].Vector)
	byDoc := make(map[string][]domain.EmbeddedChunk)
	for _, c := range chunks {
		if len(c.Vector) != dim {
			return fmt.Errorf("chunk %s: got dim %d, want %d: %w",
				c.ID(), len(c.Vector), dim, domain.ErrVectorDimMismatch)
		}
		byDoc[c.DocumentID] = append(byDoc[c.DocumentID], c)
	}

	w := s.writerFor(namespace)
	w.Lock()
	defer w.Unlock()

	if err := s.ensureIndex(ctx, namespace, dim); err != nil {
		return err
	}

	for docID, docChunks := range byDoc {
		if err := s.replaceDocument(ctx, namespace, docID, docChunks); err != nil {
			return err
		}
	}

	cmd := s.client.B().Sadd().Key(s.nsKey()).Member(namespace).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("register namespace: %w", err)
	}
	return nil
}

func (s *Store) replaceDocument(ctx context.Context, ns, docID string, chunks []domain.EmbeddedChunk) error {
	oldCount, err := s.chunkCount(ctx, ns, docID)
	if err != nil {
		return err
	}

	cmds := make([]rueidis.Completed, 0, oldCount+len(chunks)+2)
	for i := 0; i < oldCount; i++ {
		key := s.chunkKey(ns, fmt.Sprintf("%s-%d", docID, i))
		cmds = append(cmds, s.client.B().Del().Key(key).Build())
	}
	for _, c := range chunks {
		cmds = append(cmds, s.client.B().Hset().Key(s.chunkKey(ns, c.ID())).FieldValue().
			FieldValue("document_id", c.DocumentID).
			FieldValue("chunk_index", strconv.Itoa(c.ChunkIndex)).
			FieldValue("text", c.Text).
			FieldValue("session_id", c.SessionID).
			FieldValue("filename", c.SourceFilename).
			FieldValue("vector", rueidis.BinaryString(vectorToBytes(c.Vector))).
			Build())
	}
	filename := ""
	if len(chunks) > 0 {
		filename = chunks[0].SourceFilename
	}
	cmds = append(cmds,
		s.client.B().Hset().Key(s.docsKey(ns)).FieldValue().FieldValue(docID, filename).Build(),
		s.client.B().Hset().Key(s.countsKey(ns)).FieldValue().FieldValue(docID, strconv.Itoa(len(chunks))).Build(),
	)

	for _, res := range s.client.DoMulti(ctx, cmds...) {
		if err := res.Error(); err != nil {
			return fmt.Errorf("replace document %s: %w", docID, err)
		}
	}
	return nil
}

func (s *Store) chunkCount(ctx context.Context, ns, docID string) (int, error) {
	cmd := s.client.B().Hget().Key(s.countsKey(ns)).Field(docID).Build()
	v, err := s.client.Do(ctx, cmd).ToString()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("chunk count %s/%s: %w", ns, docID, err)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse chunk count %q: %w", v, err)
	}
	return n, nil
}

func (s *Store) ensureIndex(ctx context.Context, ns string, dim int) error {
	cmd := s.client.B().Arbitrary("FT.CREATE").Args(
		s.indexKey(ns),
		"ON", "HASH",
		"PREFIX", "1", s.chunkPrefix(ns),
		"SCHEMA",
		"vector", "VECTOR", "FLAT", "6",
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(dim),
		"DISTANCE_METRIC", "COSINE",
	).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "index already exists") {
			return nil
		}
		return fmt.Errorf("create index %s: %w", s.indexKey(ns), err)
	}
	return nil
}

// KNN runs FT.SEARCH vector similarity over the namespace index. The raw
// __vector_score is cosine distance and is returned as-is; relevance
// conversion happens in the scoring layer.
func (s *Store) KNN(ctx context.Context, namespace string, vector []float32, k int) ([]domain.ScoredChunk, error) {
	if k <= 0 {
		return nil, fmt.Errorf("knn: k must be positive, got %d", k)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("knn: vector is required")
	}

	cmd := s.client.B().Arbitrary("FT.SEARCH").Args(
		s.indexKey(namespace),
		fmt.Sprintf("*=>[KNN %d @vector $BLOB]", k),
		"RETURN", "6", "document_id", "chunk_index", "text", "session_id", "filename", "__vector_score",
		"SORTBY", "__vector_score",
		"PARAMS", "2", "BLOB", rueidis.BinaryString(vectorToBytes(vector)),
		"DIALECT", "2",
	).Build()

	raw, err := s.client.Do(ctx, cmd).ToArray()
	if err != nil {
		// Absent index means the namespace was never written: empty, not an error.
		if isRedisErr(err, "no such index") || isRedisErr(err, "unknown index name") {
			return nil, nil
		}
		return nil, fmt.Errorf("knn search %s: %w", namespace, err)
	}

	results, err := parseKNNResult(raw, namespace)
	if err != nil {
		return nil, err
	}

	// Redis orders by score already; re-sort for the deterministic tie-break.
	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		if results[i].DocumentID != results[j].DocumentID {
			return results[i].DocumentID < results[j].DocumentID
		}
		return results[i].ChunkIndex < results[j].ChunkIndex
	})
	return results, nil
}

// DeleteDocument removes a document's chunks and registry entries.
func (s *Store) DeleteDocument(ctx context.Context, namespace, documentID string) (int, error) {
	w := s.writerFor(namespace)
	w.Lock()
	defer w.Unlock()

	count, err := s.chunkCount(ctx, namespace, documentID)
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}

	cmds := make([]rueidis.Completed, 0, count+2)
	for i := 0; i < count; i++ {
		key := s.chunkKey(namespace, fmt.Sprintf("%s-%d", documentID, i))
		cmds = append(cmds, s.client.B().Del().Key(key).Build())
	}
	cmds = append(cmds,
		s.client.B().Hdel().Key(s.docsKey(namespace)).Field(documentID).Build(),
		s.client.B().Hdel().Key(s.countsKey(namespace)).Field(documentID).Build(),
	)

	for _, res := range s.client.DoMulti(ctx, cmds...) {
		if err := res.Error(); err != nil {
			return 0, fmt.Errorf("delete document %s: %w", documentID, err)
		}
	}
	return count, nil
}

// DeleteNamespace drops the FT index together with its documents, then the
// registry keys. No-op for an absent namespace.
func (s *Store) DeleteNamespace(ctx context.Context, namespace string) error {
	w := s.writerFor(namespace)
	w.Lock()
	defer w.Unlock()

	cmd := s.client.B().Arbitrary("FT.DROPINDEX").Args(s.indexKey(namespace), "DD").Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		if !isRedisErr(err, "no such index") && !isRedisErr(err, "unknown index name") {
			return fmt.Errorf("drop index %s: %w", namespace, err)
		}
	}

	cmds := []rueidis.Completed{
		s.client.B().Del().Key(s.docsKey(namespace)).Build(),
		s.client.B().Del().Key(s.countsKey(namespace)).Build(),
		s.client.B().Srem().Key(s.nsKey()).Member(namespace).Build(),
	}
	for _, res := range s.client.DoMulti(ctx, cmds...) {
		if err := res.Error(); err != nil {
			return fmt.Errorf("delete namespace %s: %w", namespace, err)
		}
	}
	return nil
}

// ListNamespaces reports document and chunk counts per registered namespace.
func (s *Store) ListNamespaces(ctx context.Context) ([]domain.NamespaceInfo, error) {
	cmd := s.client.B().Smembers().Key(s.nsKey()).Build()
	names, err := s.client.Do(ctx, cmd).AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("list namespaces: %w", err)
	}
	sort.Strings(names)

	infos := make([]domain.NamespaceInfo, 0, len(names))
	for _, name := range names {
		counts, err := s.docChunkCounts(ctx, name)
		if err != nil {
			return nil, err
		}
		total := 0
		for _, n := range counts {
			total += n
		}
		infos = append(infos, domain.NamespaceInfo{
			Name:          name,
			DocumentCount: len(counts),
			ChunkCount:    total,
		})
	}
	return infos, nil
}

// ListDocuments reports per-document chunk counts within a namespace.
func (s *Store) ListDocuments(ctx context.Context, namespace string) ([]domain.DocumentInfo, error) {
	cmd := s.client.B().Hgetall().Key(s.docsKey(namespace)).Build()
	files, err := s.client.Do(ctx, cmd).AsStrMap()
	if err != nil {
		return nil, fmt.Errorf("list documents %s: %w", namespace, err)
	}
	counts, err := s.docChunkCounts(ctx, namespace)
	if err != nil {
		return nil, err
	}

	infos := make([]domain.DocumentInfo, 0, len(files))
	for docID, filename := range files {
		infos = append(infos, domain.DocumentInfo{
			DocumentID:     docID,
			SourceFilename: filename,
			ChunkCount:     counts[docID],
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].DocumentID < infos[j].DocumentID })
	return infos, nil
}

// ListChunks fetches a namespace's full chunk set (re-index support).
func (s *Store) ListChunks(ctx context.Context, namespace string) ([]domain.EmbeddedChunk, error) {
	counts, err := s.docChunkCounts(ctx, namespace)
	if err != nil {
		return nil, err
	}

	docIDs := make([]string, 0, len(counts))
	for docID := range counts {
		docIDs = append(docIDs, docID)
	}
	sort.Strings(docIDs)

	var keys []string
	for _, docID := range docIDs {
		for i := 0; i < counts[docID]; i++ {
			keys = append(keys, s.chunkKey(namespace, fmt.Sprintf("%s-%d", docID, i)))
		}
	}
	if len(keys) == 0 {
		return nil, nil
	}

	cmds := make([]rueidis.Completed, len(keys))
	for i, key := range keys {
		cmds[i] = s.client.B().Hgetall().Key(key).Build()
	}

	chunks := make([]domain.EmbeddedChunk, 0, len(keys))
	for i, res := range s.client.DoMulti(ctx, cmds...) {
		fields, err := res.AsStrMap()
		if err != nil {
			return nil, fmt.Errorf("fetch chunk %s: %w", keys[i], err)
		}
		c, err := chunkFromFields(namespace, fields)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", keys[i], err)
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

func (s *Store) docChunkCounts(ctx context.Context, namespace string) (map[string]int, error) {
	cmd := s.client.B().Hgetall().Key(s.countsKey(namespace)).Build()
	raw, err := s.client.Do(ctx, cmd).AsStrMap()
	if err != nil {
		return nil, fmt.Errorf("chunk counts %s: %w", namespace, err)
	}
	counts := make(map[string]int, len(raw))
	for docID, v := range raw {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("parse chunk count %s=%q: %w", docID, v, err)
		}
		counts[docID] = n
	}
	return counts, nil
}
