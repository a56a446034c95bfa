package store

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"esaj-crawler/internal/model"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/require"
)

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	meta    map[string]map[string]string
	failPut bool
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: map[string][]byte{}, meta: map[string]map[string]string{}}
}

func (f *fakeObjects) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.failPut {
		return nil, errors.New("access denied")
	}
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*params.Bucket+"/"+*params.Key] = body
	f.meta[*params.Bucket+"/"+*params.Key] = params.Metadata
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjects) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[*params.Bucket+"/"+*params.Key]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func TestObjectStore(t *testing.T) {
	ctx := context.Background()
	objects := newFakeObjects()
	store := NewObjectStore(objects, "documents", "esaj")

	doc := testDocument("11")
	key := store.Key(doc.CaseNumber, doc.DocType, doc.DocID)
	require.Equal(t, "esaj/10012345620238260100/Peticao_11.pdf", key)

	require.NoError(t, store.PersistDocument(ctx, doc))
	require.Equal(t, doc.Content, objects.objects["documents/"+key])
	require.Equal(t, "uuid-11", objects.meta["documents/"+key]["doc-uuid"])

	has, err := store.HasDocument(ctx, doc.CaseNumber, doc.DocType, doc.DocID)
	require.NoError(t, err)
	require.True(t, has)

	require.ErrorIs(t, store.PersistDocument(ctx, doc), model.ErrAlreadyStored)
	require.Equal(t, "s3://documents/esaj", store.Location())
}

func TestObjectStorePutFailure(t *testing.T) {
	objects := newFakeObjects()
	objects.failPut = true
	store := NewObjectStore(objects, "documents", "")

	err := store.PersistDocument(context.Background(), testDocument("11"))
	require.ErrorIs(t, err, model.ErrPersistence)
}
