package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cloudhut/kafka-web/browse"
	"github.com/cloudhut/kafka-web/groups"
	"github.com/cloudhut/kafka-web/kafka"
	"github.com/cloudhut/kafka-web/kafka/kafkatest"
	"github.com/cloudhut/kafka-web/lag"
)

type fakeProducer struct {
	records []kafka.ProduceRecord
}

func (p *fakeProducer) Produce(_ context.Context, topic string, record kafka.ProduceRecord) (kafka.ProducedRecord, error) {
	p.records = append(p.records, record)
	return kafka.ProducedRecord{Topic: topic, Partition: 0, Offset: int64(len(p.records) - 1)}, nil
}

type testServer struct {
	server   *Server
	cluster  *kafkatest.Cluster
	producer *fakeProducer
	sessions *browse.Sessions
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()
	cluster := kafkatest.NewCluster()

	var lagCfg lag.Config
	lagCfg.SetDefaults()
	calc := lag.NewCalculator(lagCfg, logger, cluster)
	t.Cleanup(func() { _ = calc.Close() })

	var groupsCfg groups.Config
	groupsCfg.SetDefaults()
	remover, err := groups.NewRemover(groupsCfg, logger, cluster, "test", nil)
	require.NoError(t, err)

	var browseCfg browse.Config
	browseCfg.SetDefaults()
	browseCfg.MaxWait = 100 * time.Millisecond

	var cfg Config
	cfg.SetDefaults()

	ts := &testServer{
		cluster:  cluster,
		producer: &fakeProducer{},
		sessions: browse.NewSessions(time.Minute),
	}
	ts.server = NewServer(cfg, logger, Dependencies{
		Connector: cluster,
		Producer:  ts.producer,
		Lag:       calc,
		Remover:   remover,
		Browser:   browse.NewService(browseCfg, logger, cluster, "test", nil),
		Sessions:  ts.sessions,
		Gatherer:  prometheus.NewRegistry(),
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method string, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestStatusForKind(t *testing.T) {
	tt := []struct {
		kind kafka.ErrorKind
		want int
	}{
		{kafka.KindInvalidArgument, http.StatusBadRequest},
		{kafka.KindNotFound, http.StatusNotFound},
		{kafka.KindActiveGroup, http.StatusConflict},
		{kafka.KindConflict, http.StatusConflict},
		{kafka.KindStubbornGroup, http.StatusUnprocessableEntity},
		{kafka.KindConnectivity, http.StatusServiceUnavailable},
		{kafka.KindPartialData, http.StatusInternalServerError},
		{kafka.KindUnknown, http.StatusInternalServerError},
	}
	for _, test := range tt {
		t.Run(string(test.kind), func(t *testing.T) {
			assert.Equal(t, test.want, statusForKind(test.kind))
		})
	}
}

func TestErrorMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	_, r := gin.CreateTestContext(w)
	r.Use(errorMiddleware())
	r.GET("/stubborn", handle(func(c *gin.Context) (interface{}, error) {
		return nil, &groups.StubbornGroupError{GroupID: "billing", Attempts: 3, LastErr: errors.New("group is not empty")}
	}))

	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stubborn", nil))

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var res errorResponse
	decode(t, w, &res)
	assert.Equal(t, kafka.KindStubbornGroup, res.Code)
	assert.Equal(t, "consumer group could not be removed", res.Message)
	assert.Contains(t, res.Details, "billing")
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTopics(t *testing.T) {
	ts := newTestServer(t)
	ts.cluster.SetBounds("orders", [2]int64{0, 10})

	w := ts.do(t, http.MethodPost, "/api/topics", gin.H{"name": "payments", "partitions": 3, "replicationFactor": 1})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(t, http.MethodGet, "/api/topics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var topics []kafka.TopicInfo
	decode(t, w, &topics)
	require.Len(t, topics, 2)
	assert.Equal(t, "orders", topics[0].Name)
	assert.Equal(t, "payments", topics[1].Name)
	assert.Equal(t, 3, topics[1].Partitions)

	w = ts.do(t, http.MethodPost, "/api/topics", gin.H{"name": "orders", "partitions": 1, "replicationFactor": 1})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, http.MethodPost, "/api/topics", gin.H{"partitions": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodDelete, "/api/topics/payments", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = ts.do(t, http.MethodDelete, "/api/topics/payments", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	assert.Zero(t, ts.cluster.OpenHandles())
}

func TestTopicLag(t *testing.T) {
	ts := newTestServer(t)
	ts.cluster.SetBounds("orders", [2]int64{0, 100}, [2]int64{0, 50})
	ts.cluster.Commit("billing", "orders", 0, 40)
	ts.cluster.Commit("billing", "orders", 1, 50)
	ts.cluster.Commit("shipping", "orders", 0, 100)

	w := ts.do(t, http.MethodGet, "/api/topics/orders/lag", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res topicLagResponse
	decode(t, w, &res)
	assert.Equal(t, int64(60), res.Lag)
	assert.Equal(t, int64(150), res.TotalMessages)
	assert.Len(t, res.ConsumerGroupLags, 2)

	w = ts.do(t, http.MethodGet, "/api/topics/orders/lag?groups=shipping", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &res)
	assert.Len(t, res.ConsumerGroupLags, 1)

	w = ts.do(t, http.MethodGet, "/api/topics/missing/lag", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodGet, "/api/lag", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var overview []topicLagResponse
	decode(t, w, &overview)
	require.Len(t, overview, 1)
	assert.Equal(t, int64(60), overview[0].Lag)
}

func TestGroups(t *testing.T) {
	ts := newTestServer(t)
	ts.cluster.SetBounds("orders", [2]int64{0, 10})
	ts.cluster.Groups = []kafka.GroupDescription{
		{GroupID: "billing", State: "Stable", ProtocolType: "consumer", Members: []string{"m1", "m2"}},
		{GroupID: "kafka-web-ui-browser", State: "Empty", ProtocolType: "consumer"},
	}

	w := ts.do(t, http.MethodGet, "/api/groups", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed []groupResponse
	decode(t, w, &listed)
	require.Len(t, listed, 2)
	assert.Equal(t, groupResponse{GroupID: "billing", State: "Stable", ProtocolType: "consumer", Members: 2}, listed[0])
	assert.True(t, listed[1].UIManaged)

	w = ts.do(t, http.MethodDelete, "/api/groups/billing", nil)
	require.Equal(t, http.StatusConflict, w.Code)
	var errRes errorResponse
	decode(t, w, &errRes)
	assert.Equal(t, kafka.KindActiveGroup, errRes.Code)

	w = ts.do(t, http.MethodDelete, "/api/groups/billing?force=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodDelete, "/api/groups/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodPost, "/api/groups/kafka-web-ui-browser/force-remove", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var removed struct {
		Success bool `json:"success"`
	}
	decode(t, w, &removed)
	assert.True(t, removed.Success)
}

func TestProduceMessage(t *testing.T) {
	ts := newTestServer(t)

	partition := int32(0)
	w := ts.do(t, http.MethodPost, "/api/topics/orders/messages", produceRequest{Key: "k", Value: "v", Partition: &partition})
	require.Equal(t, http.StatusOK, w.Code)

	var produced map[string]interface{}
	decode(t, w, &produced)
	assert.Equal(t, "orders", produced["topic"])
	assert.Equal(t, "0", produced["offset"])
	require.Len(t, ts.producer.records, 1)
	assert.Equal(t, []byte("k"), ts.producer.records[0].Key)
	assert.Equal(t, &partition, ts.producer.records[0].Partition)
}

func TestPollMessages(t *testing.T) {
	ts := newTestServer(t)
	ts.cluster.AddRecords("orders", 0, "a", "b", "c")

	w := ts.do(t, http.MethodPost, "/api/topics/orders/messages/poll", gin.H{"mode": "earliest"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var first pollResponse
	decode(t, w, &first)
	require.NotEmpty(t, first.SessionID)
	require.Len(t, first.Messages, 3)
	assert.Equal(t, "a", first.Messages[0].Value)
	assert.Equal(t, map[int32]string{0: "0"}, first.SeekOffsets)
	assert.Equal(t, 1, ts.sessions.Count())

	ts.cluster.AddRecords("orders", 0, "d")
	w = ts.do(t, http.MethodPost, "/api/topics/orders/messages/poll", gin.H{"mode": "earliest", "sessionId": first.SessionID})
	require.Equal(t, http.StatusOK, w.Code)
	var second pollResponse
	decode(t, w, &second)
	assert.Equal(t, first.SessionID, second.SessionID)
	require.Len(t, second.Messages, 1)
	assert.Equal(t, "d", second.Messages[0].Value)
	assert.Equal(t, map[int32]string{0: "3"}, second.SeekOffsets)

	w = ts.do(t, http.MethodDelete, "/api/sessions/"+first.SessionID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, ts.sessions.Count())

	w = ts.do(t, http.MethodPost, "/api/topics/orders/messages/poll", gin.H{"mode": "sideways"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConfig_Validate(t *testing.T) {
	tt := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"port out of range", func(c *Config) { c.Port = 70000 }, true},
		{"cert without key", func(c *Config) { c.TLSCertFile = "/tls/cert.pem" }, true},
		{"no shutdown timeout", func(c *Config) { c.ShutdownTimeout = 0 }, true},
	}
	for _, test := range tt {
		t.Run(test.name, func(t *testing.T) {
			var cfg Config
			cfg.SetDefaults()
			test.mutate(&cfg)
			err := cfg.Validate()
			if test.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
