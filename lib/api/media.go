package api

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"net/http"
	"strconv"

	"github.com/fosdem/volstream/lib/codec"
	"github.com/fosdem/volstream/lib/source/imgsource"
	"github.com/fosdem/volstream/lib/stream"
)

type MediaResponseType string

const (
	JPEG MediaResponseType = "jpeg"
	PNG  MediaResponseType = "png"
)

// @Summary	Fetch one slice of a node's image, or encode a new image into it
// @Router		/api/node/{node}/image [get]
// @Router		/api/node/{node}/image [put]
// @Router		/api/node/{node}/image/{format} [get]
// @Tags		media
// @Param		node	path	string				true	"Name of the node"
// @Param		format	path	MediaResponseType	false	"The image type to return"
// @Param		slice	query	int					false	"Slice index along the third axis"
// @Success	200
// @Failure	400	{string}	string	"The requested image format or slice is not supported"
// @Failure	404	{string}	string	"The specified node does not exist"
// @Failure	424	{string}	string	"The node has no image yet"
// @Failure	500	{string}	string	"The API does not know how to render this image"
// @Produce	png
// @Produce	jpeg
func (a *Api) handleNodeImage(w http.ResponseWriter, req *http.Request) {
	n := a.lookupNode(w, req)
	if n == nil {
		return
	}

	switch req.Method {
	case http.MethodGet:
		a.getNodeImage(w, req, n)
	case http.MethodPut:
		a.putNodeImage(w, req, n)
	default:
		http.Error(w, "Invalid method, only GET and PUT supported", http.StatusMethodNotAllowed)
	}
}

func (a *Api) getNodeImage(w http.ResponseWriter, req *http.Request, n *stream.Node) {
	vol := n.Image()
	if vol == nil {
		http.Error(w, "No image available", http.StatusFailedDependency)
		return
	}

	z := 0
	if s := req.URL.Query().Get("slice"); s != "" {
		var err error
		z, err = strconv.Atoi(s)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid slice: %s", err), http.StatusBadRequest)
			return
		}
	}

	img, err := imgsource.Slice(vol, z)
	if errors.Is(err, codec.ErrUnsupportedImage) {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	} else if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	switch MediaResponseType(req.PathValue("format")) {
	case "", PNG:
		w.Header().Set("Content-Type", "image/png")
		err = png.Encode(w, img)
	case JPEG:
		w.Header().Set("Content-Type", "image/jpeg")
		err = jpeg.Encode(w, img, &jpeg.Options{Quality: 80})
	default:
		http.Error(w, "Unsupported format", http.StatusBadRequest)
		return
	}
	if err != nil {
		a.log.Warn("could not encode image", "node", n.Name, "err", err)
	}
}

func (a *Api) putNodeImage(w http.ResponseWriter, req *http.Request, n *stream.Node) {
	newImage, ftype, err := image.Decode(req.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("not a valid image: %s", err), http.StatusBadRequest)
		return
	}
	a.log.Info("encoding uploaded image", "node", n.Name, "format", ftype,
		"width", newImage.Bounds().Dx(), "height", newImage.Bounds().Dy())

	err = n.Encode(imgsource.ToVolume(newImage))
	if errors.Is(err, stream.ErrNoCodec) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	} else if err != nil {
		http.Error(w, fmt.Sprintf("could not encode image: %s", err), http.StatusBadRequest)
		return
	}
	a.writeJSON(w, "ok")
}
