package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setSync(t *testing.T, e *Engine, key, value string) *WorkItem {
	t.Helper()
	req := NewRequest(WorkSet, 1)
	item := &WorkItem{Work: WorkSet, SetOp: SetPlain, Key: []byte(key), Value: []byte(value)}
	req.Attach(item)
	require.NoError(t, e.Submit(context.Background(), item))
	return <-req.Completions
}

func getSync(t *testing.T, e *Engine, key string) *WorkItem {
	t.Helper()
	req := NewRequest(WorkGet, 1)
	item := &WorkItem{Work: WorkGet, Key: []byte(key)}
	req.Attach(item)
	require.NoError(t, e.Submit(context.Background(), item))
	return <-req.Completions
}

func TestEngine_SetGet(t *testing.T) {
	e := New(Config{NumShards: 4}, nil)
	defer e.Close()

	res := setSync(t, e, "foo", "bar")
	assert.True(t, res.StoredOK)

	got := getSync(t, e, "foo")
	require.True(t, got.Found)
	assert.Equal(t, "bar", string(got.Result.Value))
}

func TestEngine_GetMiss(t *testing.T) {
	e := New(Config{NumShards: 4}, nil)
	defer e.Close()

	got := getSync(t, e, "nope")
	assert.False(t, got.Found)
}

func TestEngine_AddReplace(t *testing.T) {
	e := New(Config{NumShards: 2}, nil)
	defer e.Close()

	req := NewRequest(WorkSet, 1)
	addItem := &WorkItem{Work: WorkSet, SetOp: SetAdd, Key: []byte("k"), Value: []byte("v1")}
	req.Attach(addItem)
	require.NoError(t, e.Submit(context.Background(), addItem))
	res := <-req.Completions
	assert.True(t, res.StoredOK)

	req2 := NewRequest(WorkSet, 1)
	addAgain := &WorkItem{Work: WorkSet, SetOp: SetAdd, Key: []byte("k"), Value: []byte("v2")}
	req2.Attach(addAgain)
	require.NoError(t, e.Submit(context.Background(), addAgain))
	res2 := <-req2.Completions
	assert.False(t, res2.StoredOK)

	req3 := NewRequest(WorkSet, 1)
	replace := &WorkItem{Work: WorkSet, SetOp: SetReplace, Key: []byte("missing"), Value: []byte("v")}
	req3.Attach(replace)
	require.NoError(t, e.Submit(context.Background(), replace))
	res3 := <-req3.Completions
	assert.False(t, res3.StoredOK)
}

func TestEngine_Cas(t *testing.T) {
	e := New(Config{NumShards: 1}, nil)
	defer e.Close()

	setSync(t, e, "k", "v1")
	got := getSync(t, e, "k")
	token := got.Result.CAS

	req := NewRequest(WorkSet, 1)
	cas := &WorkItem{Work: WorkSet, SetOp: SetCas, Key: []byte("k"), Value: []byte("v2"), HasCas: true, CasUnique: token}
	req.Attach(cas)
	require.NoError(t, e.Submit(context.Background(), cas))
	res := <-req.Completions
	assert.True(t, res.StoredOK)

	req2 := NewRequest(WorkSet, 1)
	stale := &WorkItem{Work: WorkSet, SetOp: SetCas, Key: []byte("k"), Value: []byte("v3"), HasCas: true, CasUnique: token}
	req2.Attach(stale)
	require.NoError(t, e.Submit(context.Background(), stale))
	res2 := <-req2.Completions
	assert.False(t, res2.StoredOK)
	assert.True(t, res2.CASExists)
}

func TestEngine_Delete(t *testing.T) {
	e := New(Config{NumShards: 1}, nil)
	defer e.Close()

	setSync(t, e, "k", "v")

	req := NewRequest(WorkDelete, 1)
	del := &WorkItem{Work: WorkDelete, Key: []byte("k")}
	req.Attach(del)
	require.NoError(t, e.Submit(context.Background(), del))
	res := <-req.Completions
	assert.True(t, res.Found)

	req2 := NewRequest(WorkDelete, 1)
	del2 := &WorkItem{Work: WorkDelete, Key: []byte("k")}
	req2.Attach(del2)
	require.NoError(t, e.Submit(context.Background(), del2))
	res2 := <-req2.Completions
	assert.False(t, res2.Found)
}

func TestEngine_ArithIncrDecr(t *testing.T) {
	e := New(Config{NumShards: 1}, nil)
	defer e.Close()

	setSync(t, e, "counter", "10")

	req := NewRequest(WorkArith, 1)
	incr := &WorkItem{Work: WorkArith, Key: []byte("counter"), Delta: 1, Incr: true}
	req.Attach(incr)
	require.NoError(t, e.Submit(context.Background(), incr))
	res := <-req.Completions
	require.True(t, res.Found)
	assert.Equal(t, "11", string(res.NewValue))

	req2 := NewRequest(WorkArith, 1)
	decr := &WorkItem{Work: WorkArith, Key: []byte("counter"), Delta: 100, Incr: false}
	req2.Attach(decr)
	require.NoError(t, e.Submit(context.Background(), decr))
	res2 := <-req2.Completions
	require.True(t, res2.Found)
	assert.Equal(t, "0", string(res2.NewValue))

	req3 := NewRequest(WorkArith, 1)
	missing := &WorkItem{Work: WorkArith, Key: []byte("nope"), Delta: 1, Incr: true}
	req3.Attach(missing)
	require.NoError(t, e.Submit(context.Background(), missing))
	res3 := <-req3.Completions
	assert.False(t, res3.Found)
}

func TestEngine_Expiry(t *testing.T) {
	e := New(Config{NumShards: 1}, nil)
	defer e.Close()

	req := NewRequest(WorkSet, 1)
	item := &WorkItem{
		Work: WorkSet, SetOp: SetPlain, Key: []byte("k"), Value: []byte("v"),
		Expiry: NormalizeExptime(1, time.Now()),
	}
	req.Attach(item)
	require.NoError(t, e.Submit(context.Background(), item))
	<-req.Completions

	time.Sleep(1100 * time.Millisecond)

	got := getSync(t, e, "k")
	assert.False(t, got.Found)
}

func TestEngine_MultiKeyGet_DistinctShards(t *testing.T) {
	e := New(Config{NumShards: 8}, nil)
	defer e.Close()

	for _, k := range []string{"a", "b", "c", "d"} {
		setSync(t, e, k, k+"-value")
	}

	req := NewRequest(WorkGet, 4)
	items := make([]*WorkItem, 0, 4)
	for _, k := range []string{"a", "b", "c", "d"} {
		item := &WorkItem{Work: WorkGet, Key: []byte(k)}
		req.Attach(item)
		items = append(items, item)
		require.NoError(t, e.Submit(context.Background(), item))
	}

	for range items {
		res := <-req.Completions
		req.NCompleted++
		assert.True(t, res.Found)
	}
	assert.True(t, req.Ready())
}
