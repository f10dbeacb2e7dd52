package rag

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// QdrantClient wraps the Qdrant gRPC client for a single collection
type QdrantClient struct {
	client     *qdrant.Client
	collection CollectionConfig
}

// NewQdrantClient connects to Qdrant. The collection is not touched until EnsureCollection.
func NewQdrantClient(host string, port int, apiKey string, useTLS bool, collection CollectionConfig) (*QdrantClient, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}
	if collection.Distance == "" {
		collection.Distance = "Cosine"
	}
	return &QdrantClient{client: client, collection: collection}, nil
}

// EnsureCollection creates the collection if it is absent
func (q *QdrantClient) EnsureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection.Name)
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", q.collection.Name, err)
	}
	if exists {
		return nil
	}

	distance, err := qdrantDistance(q.collection.Distance)
	if err != nil {
		return err
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection.Name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.collection.VectorSize),
			Distance: distance,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", q.collection.Name, err)
	}

	log.Printf("[Qdrant] created collection %s (%d dims, %s)", q.collection.Name, q.collection.VectorSize, q.collection.Distance)
	return nil
}

func qdrantDistance(name string) (qdrant.Distance, error) {
	switch name {
	case "Cosine":
		return qdrant.Distance_Cosine, nil
	case "Dot":
		return qdrant.Distance_Dot, nil
	case "Euclid":
		return qdrant.Distance_Euclid, nil
	default:
		return 0, fmt.Errorf("unsupported distance %q", name)
	}
}

// PointID maps a fingerprint onto the UUID Qdrant requires as a point id.
// Hex fingerprints of 16 bytes map directly; anything else is hashed first.
func PointID(fingerprint string) string {
	raw, err := hex.DecodeString(fingerprint)
	if err != nil || len(raw) != 16 {
		sum := md5.Sum([]byte(fingerprint))
		raw = sum[:]
	}
	id, _ := uuid.FromBytes(raw)
	return id.String()
}

// Upsert inserts or overwrites points
func (q *QdrantClient) Upsert(ctx context.Context, points []*Point) error {
	if len(points) == 0 {
		return nil
	}

	structs := make([]*qdrant.PointStruct, 0, len(points))
	for _, point := range points {
		payload := make(map[string]any, len(point.Payload)+1)
		for k, v := range point.Payload {
			payload[k] = v
		}
		payload[payloadFingerprint] = point.ID

		values, err := qdrant.TryValueMap(payload)
		if err != nil {
			return fmt.Errorf("invalid payload for point %s: %w", point.ID, err)
		}

		structs = append(structs, &qdrant.PointStruct{
			Id:      qdrant.NewID(PointID(point.ID)),
			Vectors: qdrant.NewVectors(point.Vector...),
			Payload: values,
		})
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection.Name,
		Wait:           qdrant.PtrOf(true),
		Points:         structs,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert %d points: %w", len(points), err)
	}
	return nil
}

// Search searches for similar vectors
func (q *QdrantClient) Search(ctx context.Context, vector []float32, opts *SearchOptions) ([]*SearchResult, error) {
	if opts == nil {
		opts = &SearchOptions{Limit: 10}
	}

	req := &qdrant.QueryPoints{
		CollectionName: q.collection.Name,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(opts.Limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if opts.Filter != nil && len(opts.Filter.Must) > 0 {
		must := make([]*qdrant.Condition, 0, len(opts.Filter.Must))
		for _, c := range opts.Filter.Must {
			must = append(must, qdrant.NewMatch(c.Key, c.Match))
		}
		req.Filter = &qdrant.Filter{Must: must}
	}

	points, err := q.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", q.collection.Name, err)
	}

	results := make([]*SearchResult, 0, len(points))
	for _, p := range points {
		payload := payloadToMap(p.GetPayload())
		id, _ := payload[payloadFingerprint].(string)
		if id == "" {
			id = p.GetId().GetUuid()
		}
		delete(payload, payloadFingerprint)

		results = append(results, &SearchResult{
			ID:      id,
			Score:   float64(p.GetScore()),
			Payload: payload,
		})
	}
	return results, nil
}

// Info returns information about the collection
func (q *QdrantClient) Info(ctx context.Context) (*CollectionInfo, error) {
	count, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.collection.Name,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count %s: %w", q.collection.Name, err)
	}
	return &CollectionInfo{
		Name:       q.collection.Name,
		VectorSize: q.collection.VectorSize,
		PointCount: int(count),
	}, nil
}

// Close closes client connection
func (q *QdrantClient) Close() error {
	return q.client.Close()
}

func payloadToMap(payload map[string]*qdrant.Value) map[string]interface{} {
	out := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		out[k] = valueToInterface(v)
	}
	return out
}

func valueToInterface(v *qdrant.Value) interface{} {
	if v == nil {
		return nil
	}
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_StructValue:
		return payloadToMap(kind.StructValue.GetFields())
	case *qdrant.Value_ListValue:
		values := kind.ListValue.GetValues()
		list := make([]interface{}, len(values))
		for i, item := range values {
			list[i] = valueToInterface(item)
		}
		return list
	default:
		return nil
	}
}
