package export

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"
	"go.uber.org/zap"

	"github.com/life2you_mini/poolcore/internal/model"
)

// FeatureRecord 一行特征导出记录
type FeatureRecord struct {
	ObservationID string    `parquet:"name=observation_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	PoolID        string    `parquet:"name=pool_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp     int64     `parquet:"name=timestamp, type=INT64"`
	SchemaID      string    `parquet:"name=schema_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Values        []float64 `parquet:"name=values, type=DOUBLE, repetitiontype=REPEATED"`
}

type memFile struct {
	buffer *bytes.Buffer
}

func newMemFile() *memFile {
	return &memFile{buffer: &bytes.Buffer{}}
}

func (m *memFile) Create(string) (source.ParquetFile, error) { return m, nil }
func (m *memFile) Open(string) (source.ParquetFile, error)   { return m, nil }
func (m *memFile) Seek(int64, int) (int64, error)            { return int64(m.buffer.Len()), nil }
func (m *memFile) Read([]byte) (int, error)                  { return 0, fmt.Errorf("内存文件不支持读取") }
func (m *memFile) Write(b []byte) (int, error)               { return m.buffer.Write(b) }
func (m *memFile) Close() error                              { return nil }
func (m *memFile) Bytes() []byte                             { return m.buffer.Bytes() }

// ParquetExporter 收集分析结果中的特征向量并写成 parquet
type ParquetExporter struct {
	mu          sync.Mutex
	records     []FeatureRecord
	compression parquet.CompressionCodec
	logger      *zap.Logger
}

// NewParquetExporter 创建导出器，compression 取 snappy / gzip / none
func NewParquetExporter(compression string, logger *zap.Logger) *ParquetExporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ParquetExporter{
		compression: compressionCodec(compression),
		logger:      logger.With(zap.String("component", "parquet_exporter")),
	}
}

func compressionCodec(name string) parquet.CompressionCodec {
	switch strings.ToLower(name) {
	case "", "snappy":
		return parquet.CompressionCodec_SNAPPY
	case "gzip":
		return parquet.CompressionCodec_GZIP
	default:
		return parquet.CompressionCodec_UNCOMPRESSED
	}
}

// Add 记录一条结果，没有特征向量的结果被跳过
func (e *ParquetExporter) Add(res *model.Result) bool {
	if res == nil || res.FeatureVector == nil {
		return false
	}
	rec := FeatureRecord{
		ObservationID: res.ObservationID,
		PoolID:        res.PoolID,
		Timestamp:     res.Timestamp,
		SchemaID:      res.FeatureVector.SchemaID,
		Values:        append([]float64(nil), res.FeatureVector.Values...),
	}
	e.mu.Lock()
	e.records = append(e.records, rec)
	e.mu.Unlock()
	return true
}

// Len 已收集的记录数
func (e *ParquetExporter) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.records)
}

func (e *ParquetExporter) snapshot() []FeatureRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]FeatureRecord(nil), e.records...)
}

// Encode 在内存中编码为 parquet 字节
func (e *ParquetExporter) Encode() ([]byte, error) {
	mem := newMemFile()
	if err := e.write(mem); err != nil {
		return nil, err
	}
	return mem.Bytes(), nil
}

// WriteFile 写入本地 parquet 文件
func (e *ParquetExporter) WriteFile(path string) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("创建导出文件失败: %w", err)
	}
	if err := e.write(fw); err != nil {
		fw.Close()
		return err
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("关闭导出文件失败: %w", err)
	}
	e.logger.Info("特征向量已导出", zap.String("path", path), zap.Int("records", e.Len()))
	return nil
}

func (e *ParquetExporter) write(f source.ParquetFile) error {
	pw, err := writer.NewParquetWriter(f, new(FeatureRecord), 1)
	if err != nil {
		return fmt.Errorf("创建 parquet writer 失败: %w", err)
	}
	pw.CompressionType = e.compression

	for _, rec := range e.snapshot() {
		if err := pw.Write(rec); err != nil {
			pw.WriteStop()
			return fmt.Errorf("写入特征记录失败: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("完成 parquet 写入失败: %w", err)
	}
	return nil
}
