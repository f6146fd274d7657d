package recorder

import (
	"fmt"
	"os"
	"time"

	parquetbuffer "github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type sampleRow struct {
	TSUTCISO   string  `parquet:"name=ts_utc_iso, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	ElapsedS   float64 `parquet:"name=elapsed_s, type=DOUBLE"`
	PowerW     int32   `parquet:"name=power_w, type=INT32"`
	HRBPM      int32   `parquet:"name=hr_bpm, type=INT32"`
	CadenceRPM int32   `parquet:"name=cadence_rpm, type=INT32"`
	SpeedKmh   float64 `parquet:"name=speed_kmh, type=DOUBLE"`
	GradePct   float64 `parquet:"name=grade_pct, type=DOUBLE"`
	DistanceM  float64 `parquet:"name=distance_m, type=DOUBLE"`
}

func marshalSamplesParquet(startedAt time.Time, points []point) ([]byte, error) {
	fw := parquetbuffer.NewBufferFile()
	pw, err := writer.NewParquetWriter(fw, new(sampleRow), 4)
	if err != nil {
		return nil, err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, p := range points {
		row := sampleRow{
			TSUTCISO:   p.at.UTC().Format(time.RFC3339),
			ElapsedS:   p.at.Sub(startedAt).Seconds(),
			PowerW:     int32(p.sample.PowerWatts),
			HRBPM:      int32(p.sample.HeartRateBpm),
			CadenceRPM: int32(p.sample.CadenceRpm),
			SpeedKmh:   p.sample.SpeedKmh,
			GradePct:   p.sample.GradePercent,
			DistanceM:  p.distanceM,
		}
		if err := pw.Write(row); err != nil {
			_ = pw.WriteStop()
			return nil, err
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return append([]byte(nil), fw.Bytes()...), nil
}

// exportParquet writes the per-second samples next to the FIT file for analysis tools.
func exportParquet(path string, startedAt time.Time, points []point) error {
	data, err := marshalSamplesParquet(startedAt, points)
	if err != nil {
		return fmt.Errorf("encode parquet: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write parquet: %w", err)
	}
	return nil
}
