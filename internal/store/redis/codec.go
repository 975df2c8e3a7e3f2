package redis

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/redis/rueidis"

	"github.com/aramb-dev/agentkit/internal/domain"
)

// vectorToBytes encodes a float32 vector as little-endian bytes for the FT
// VECTOR field and KNN BLOB parameter.
func vectorToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid vector data: len=%d (not multiple of 4)", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}

// parseKNNResult decodes the RESP2 FT.SEARCH reply:
// [total, key1, fields1, key2, fields2, ...] with fields as flat name/value pairs.
func parseKNNResult(raw []rueidis.RedisMessage, namespace string) ([]domain.ScoredChunk, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return nil, nil
	}

	results := make([]domain.ScoredChunk, 0, total)
	for i := 1; i+1 < len(raw); i += 2 {
		fieldMsgs, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}
		fields := parseFieldPairs(fieldMsgs)

		idx, err := strconv.Atoi(fields["chunk_index"])
		if err != nil {
			return nil, fmt.Errorf("parse chunk_index %q: %w", fields["chunk_index"], err)
		}
		dist, err := strconv.ParseFloat(fields["__vector_score"], 64)
		if err != nil {
			return nil, fmt.Errorf("parse __vector_score %q: %w", fields["__vector_score"], err)
		}

		results = append(results, domain.ScoredChunk{
			Chunk: domain.Chunk{
				DocumentID:     fields["document_id"],
				ChunkIndex:     idx,
				Text:           fields["text"],
				Namespace:      namespace,
				SessionID:      fields["session_id"],
				SourceFilename: fields["filename"],
			},
			Distance: dist,
		})
	}
	return results, nil
}

func parseFieldPairs(msgs []rueidis.RedisMessage) map[string]string {
	fields := make(map[string]string, len(msgs)/2)
	for i := 0; i+1 < len(msgs); i += 2 {
		name, err := msgs[i].ToString()
		if err != nil {
			continue
		}
		value, err := msgs[i+1].ToString()
		if err != nil {
			continue
		}
		fields[name] = value
	}
	return fields
}

// chunkFromFields hydrates an embedded chunk from its hash record.
func chunkFromFields(namespace string, fields map[string]string) (domain.EmbeddedChunk, error) {
	idx, err := strconv.Atoi(fields["chunk_index"])
	if err != nil {
		return domain.EmbeddedChunk{}, fmt.Errorf("parse chunk_index %q: %w", fields["chunk_index"], err)
	}
	vec, err := bytesToVector([]byte(fields["vector"]))
	if err != nil {
		return domain.EmbeddedChunk{}, err
	}
	return domain.EmbeddedChunk{
		Chunk: domain.Chunk{
			DocumentID:     fields["document_id"],
			ChunkIndex:     idx,
			Text:           fields["text"],
			Namespace:      namespace,
			SessionID:      fields["session_id"],
			SourceFilename: fields["filename"],
		},
		Vector: vec,
	}, nil
}
