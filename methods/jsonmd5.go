package methods

import (
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"math"

	"github.com/GrainArc/HydroMesh/Transformer"
)

// MeshKey 构网缓存键：按位对投影坐标、间距和构网选项做 md5
// 相同输入在不同进程中得到相同的键。
func MeshKey(rings [][]Transformer.PlanarPoint, interval float64, flags ...bool) string {
	hash := md5.New()
	var buf [8]byte
	writeFloat := func(v float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		hash.Write(buf[:])
	}

	writeFloat(interval)
	for _, f := range flags {
		if f {
			hash.Write([]byte{1})
		} else {
			hash.Write([]byte{0})
		}
	}
	for _, ring := range rings {
		binary.LittleEndian.PutUint64(buf[:], uint64(len(ring)))
		hash.Write(buf[:])
		for _, p := range ring {
			writeFloat(p.X)
			writeFloat(p.Z)
		}
	}
	return hex.EncodeToString(hash.Sum(nil))
}
