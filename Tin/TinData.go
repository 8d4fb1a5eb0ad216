package Tin

import "github.com/GrainArc/HydroMesh/Transformer"

// DefaultInterval 内部加密网格的默认间距（米）
const DefaultInterval = 10.0

// DefaultMaxSamples 服务端默认的候选网格点上限
const DefaultMaxSamples = 4000000

// Polygon 局部平面上的闭合环，首尾点可以相同也可以不同
type Polygon []Transformer.PlanarPoint

// Triangle 指向加密点集的三个下标
type Triangle [3]int

// MeshBuffers 交给渲染端的顶点/索引缓冲
// Positions 为 (x, 0, z) 三元组，前 BoundaryCount 个顶点为输入外环。
// 返回后视为只读，缓存中的实例会被多个请求共享。
type MeshBuffers struct {
	Positions     []float64 `json:"positions"`
	Indices       []uint32  `json:"indices"`
	BoundaryCount int       `json:"boundaryCount"`
}

// VertexCount 顶点数量
func (m *MeshBuffers) VertexCount() int {
	return len(m.Positions) / 3
}

// TriangleCount 三角形数量
func (m *MeshBuffers) TriangleCount() int {
	return len(m.Indices) / 3
}

// Empty 没有任何三角形
func (m *MeshBuffers) Empty() bool {
	return len(m.Indices) == 0
}

// Point3 剖面点，Y 为高程
type Point3 struct {
	X, Y, Z float64
}

// CrossSection 剖面网格及同一三角网上的水面
type CrossSection struct {
	Surface   *MeshBuffers `json:"surface"`
	Water     *MeshBuffers `json:"water"`
	MinHeight float64      `json:"minHeight"`
	MaxHeight float64      `json:"maxHeight"`
}
