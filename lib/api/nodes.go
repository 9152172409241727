package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/fosdem/volstream/lib/codec"
	"github.com/fosdem/volstream/lib/stream"
)

type CodecList struct {
	Codecs []string `json:"codecs" example:"jpeg,lossless"`
}

// @Summary	List the registered codec backends
// @Router		/api/codecs [get]
// @Tags		codec
// @Produce	json
// @Success	200	{object}	CodecList
func (a *Api) handleCodecs(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, CodecList{Codecs: a.session.Registry.List()})
}

// @Summary	Status of all nodes
// @Router		/api/nodes [get]
// @Tags		node
// @Produce	json
// @Success	200	{array}	stream.NodeStatus
func (a *Api) handleNodes(w http.ResponseWriter, _ *http.Request) {
	result := make([]stream.NodeStatus, 0, len(a.session.NodeList))
	for _, n := range a.session.NodeList {
		result = append(result, n.Status())
	}
	a.writeJSON(w, result)
}

// lookupNode resolves the {node} path parameter or writes an error.
func (a *Api) lookupNode(w http.ResponseWriter, req *http.Request) *stream.Node {
	name := req.PathValue("node")
	if name == "" {
		http.Error(w, "Missing node name", http.StatusBadRequest)
		return nil
	}
	n, ok := a.session.Node(name)
	if !ok {
		http.Error(w, "Node does not exist", http.StatusNotFound)
		return nil
	}
	return n
}

// @Summary	Status of one node
// @Router		/api/node/{node} [get]
// @Tags		node
// @Param		node	path	string	true	"Node name"
// @Produce	json
// @Success	200	{object}	stream.NodeStatus
// @Failure	404	{string}	string	"The node does not exist"
func (a *Api) handleNode(w http.ResponseWriter, req *http.Request) {
	n := a.lookupNode(w, req)
	if n == nil {
		return
	}
	a.writeJSON(w, n.Status())
}

// @Summary	Make the next encoded frame of a node a key frame
// @Router		/api/node/{node}/keyframe [post]
// @Tags		node
// @Param		node	path	string	true	"Node name"
// @Success	200
// @Failure	404	{string}	string	"The node does not exist"
// @Failure	405	{string}	string	"Only POST is supported"
func (a *Api) handleKeyFrame(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "Invalid method, only POST supported", http.StatusMethodNotAllowed)
		return
	}
	n := a.lookupNode(w, req)
	if n == nil {
		return
	}
	n.RequestKeyFrame()
	a.writeJSON(w, "ok")
}

// @Summary	Switch the codec variant of a node
// @Router		/api/node/{node}/codec_type/{type} [post]
// @Tags		node
// @Param		node	path	string	true	"Node name"
// @Param		type	path	string	true	"Codec variant, for instance qoi or zstd"
// @Success	200
// @Failure	400	{string}	string	"The codec does not support this variant"
// @Failure	404	{string}	string	"The node does not exist"
// @Failure	409	{string}	string	"The node has no codec attached"
func (a *Api) handleCodecType(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "Invalid method, only POST supported", http.StatusMethodNotAllowed)
		return
	}
	n := a.lookupNode(w, req)
	if n == nil {
		return
	}
	err := n.SetCodecType(req.PathValue("type"))
	switch {
	case errors.Is(err, stream.ErrNoCodec):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, codec.ErrUnknownCodecType):
		http.Error(w, fmt.Sprintf("could not set codec type: %s", err), http.StatusBadRequest)
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		a.writeJSON(w, "ok")
	}
}
