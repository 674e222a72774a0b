package server

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/dselans/zpeek/inflate"
)

// HeaderResponse is the JSON rendering of a decoded header
type HeaderResponse struct {
	CMF        uint8  `json:"cmf"`
	FLG        uint8  `json:"flg"`
	Method     uint8  `json:"method"`
	Info       uint8  `json:"info"`
	WindowSize int    `json:"window_size"`
	Level      string `json:"level"`
	Final      bool   `json:"final"`
	BlockType  string `json:"block_type"`
}

type EventResponse struct {
	State string `json:"state"`
	Value uint32 `json:"value"`
}

type InspectResponse struct {
	Header *HeaderResponse  `json:"header,omitempty"`
	Events []*EventResponse `json:"events"`
	Error  string           `json:"error,omitempty"`
	Kind   string           `json:"kind,omitempty"`
	Offset int64            `json:"offset,omitempty"`
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.health)

	v1 := s.router.Group("/v1")
	v1.POST("/inspect", s.inspect)
	v1.POST("/sniff", s.sniff)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) inspect(c *gin.Context) {
	body := http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.TOML.Server.MaxBody)

	resp := &InspectResponse{Events: make([]*EventResponse, 0)}

	hdr, err := inflate.Decode(c.Request.Context(), body,
		inflate.WithChunkSize(s.cfg.TOML.Config.ChunkSize),
		inflate.WithObserver(func(ev inflate.Event) {
			resp.Events = append(resp.Events, &EventResponse{State: ev.State, Value: ev.Value})
		}),
	)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return
		}

		resp.Error = err.Error()
		resp.Kind = inflate.Kind(err)

		var fe *inflate.FieldError
		if errors.As(err, &fe) {
			resp.Offset = fe.Offset
		}

		c.JSON(http.StatusUnprocessableEntity, resp)
		return
	}

	resp.Header = &HeaderResponse{
		CMF:        hdr.CMF,
		FLG:        hdr.FLG,
		Method:     hdr.Method,
		Info:       hdr.Info,
		WindowSize: hdr.WindowSize(),
		Level:      hdr.Level.String(),
		Final:      hdr.Final,
		BlockType:  hdr.Type.String(),
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) sniff(c *gin.Context) {
	buf := make([]byte, 2)

	n, err := io.ReadFull(http.MaxBytesReader(c.Writer, c.Request.Body, 2), buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		c.JSON(http.StatusBadRequest, gin.H{"error": errors.Wrap(err, "unable to read body").Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"zlib": inflate.Sniff(buf[:n])})
}
