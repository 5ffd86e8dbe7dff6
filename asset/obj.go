package asset

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/g3n/engine/loader/obj"
	"github.com/go-gl/mathgl/mgl32"
)

// Vertex is the vertex layout of the object pipeline: POSITION float4,
// TEXCOORD float2, NORMAL float3.
type Vertex struct {
	Position mgl32.Vec4
	TexCoord mgl32.Vec2
	Normal   mgl32.Vec3
}

// Model is a triangle list with the diffuse texture of its material.
type Model struct {
	Vertices []Vertex
	// TexturePath is the map_Kd of the first textured material, joined
	// with the model directory. Empty if no material has one.
	TexturePath string
}

// LoadObj reads dir/filename and the material library it references.
// Faces are fan-triangulated. Positions and normals are mirrored in x and
// every triangle is emitted in reverse order, which keeps front faces
// front-facing. Texture v is flipped to top-left origin.
func LoadObj(dir, filename string) (*Model, error) {
	objBytes, err := os.ReadFile(filepath.Join(dir, filename))
	if err != nil {
		return nil, errors.Wrapf(err, "read model %s", filename)
	}

	var mtl io.Reader = strings.NewReader("")
	if lib := mtllib(objBytes); lib != "" {
		mtlBytes, err := os.ReadFile(filepath.Join(dir, lib))
		if err != nil {
			return nil, errors.Wrapf(err, "read material library %s", lib)
		}
		mtl = bytes.NewReader(mtlBytes)
	}

	decoder, err := obj.DecodeReader(bytes.NewReader(objBytes), mtl)
	if err != nil {
		return nil, errors.Wrapf(err, "decode model %s", filename)
	}

	model := &Model{}
	for _, decodedObj := range decoder.Objects {
		for _, face := range decodedObj.Faces {
			for i := 2; i < len(face.Vertices); i++ {
				model.Vertices = append(model.Vertices,
					faceVertex(decoder, face, i),
					faceVertex(decoder, face, i-1),
					faceVertex(decoder, face, 0),
				)
			}
			if model.TexturePath == "" {
				if m, ok := decoder.Materials[face.Material]; ok && m.MapKd != "" {
					model.TexturePath = filepath.Join(dir, m.MapKd)
				}
			}
		}
	}
	if len(model.Vertices) == 0 {
		return nil, errors.Newf("model %s has no faces", filename)
	}
	return model, nil
}

func faceVertex(decoder *obj.Decoder, face obj.Face, i int) Vertex {
	vertInd := face.Vertices[i]
	v := Vertex{Position: mgl32.Vec4{
		-decoder.Vertices[vertInd*3],
		decoder.Vertices[vertInd*3+1],
		decoder.Vertices[vertInd*3+2],
		1,
	}}

	if i < len(face.Uvs) && face.Uvs[i] >= 0 && face.Uvs[i]*2+1 < len(decoder.Uvs) {
		uvInd := face.Uvs[i]
		v.TexCoord = mgl32.Vec2{
			decoder.Uvs[uvInd*2],
			1.0 - decoder.Uvs[uvInd*2+1],
		}
	}
	if i < len(face.Normals) && face.Normals[i] >= 0 && face.Normals[i]*3+2 < len(decoder.Normals) {
		nInd := face.Normals[i]
		v.Normal = mgl32.Vec3{
			-decoder.Normals[nInd*3],
			decoder.Normals[nInd*3+1],
			decoder.Normals[nInd*3+2],
		}
	}
	return v
}

// mtllib returns the first material library named by an OBJ file.
func mtllib(objBytes []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(objBytes))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if rest, ok := strings.CutPrefix(line, "mtllib"); ok && rest != "" && (rest[0] == ' ' || rest[0] == '\t') {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}
