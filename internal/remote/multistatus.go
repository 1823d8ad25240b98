package remote

import (
	"encoding/xml"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// propfindBody 只请求缓存与列表需要的四个属性。
const propfindBody = `<?xml version="1.0" encoding="utf-8"?>
<D:propfind xmlns:D="DAV:">
  <D:prop>
    <D:resourcetype/>
    <D:getlastmodified/>
    <D:getcontenttype/>
    <D:getcontentlength/>
  </D:prop>
</D:propfind>`

type multistatus struct {
	XMLName   xml.Name      `xml:"DAV: multistatus"`
	Responses []davResponse `xml:"DAV: response"`
}

type davResponse struct {
	Href      string        `xml:"DAV: href"`
	Propstats []davPropstat `xml:"DAV: propstat"`
}

type davPropstat struct {
	Prop   davProp `xml:"DAV: prop"`
	Status string  `xml:"DAV: status"`
}

type davProp struct {
	ResourceType  davResourceType `xml:"DAV: resourcetype"`
	LastModified  *string         `xml:"DAV: getlastmodified"`
	ContentType   *string         `xml:"DAV: getcontenttype"`
	ContentLength *string         `xml:"DAV: getcontentlength"`
}

type davResourceType struct {
	Collection *struct{} `xml:"DAV: collection"`
}

// resource 是单个 response 元素合并所有成功 propstat 后的结果。
type resource struct {
	href          string
	collection    bool
	lastModified  time.Time
	hasModified   bool
	contentType   string
	contentLength int64
}

func decodeMultistatus(r io.Reader) ([]resource, error) {
	var ms multistatus
	if err := xml.NewDecoder(r).Decode(&ms); err != nil {
		return nil, err
	}

	out := make([]resource, 0, len(ms.Responses))
	for _, resp := range ms.Responses {
		res := resource{href: strings.TrimSpace(resp.Href)}
		for _, ps := range resp.Propstats {
			if !propstatOK(ps.Status) {
				continue
			}
			prop := ps.Prop
			if prop.ResourceType.Collection != nil {
				res.collection = true
			}
			if prop.LastModified != nil {
				if t, err := http.ParseTime(strings.TrimSpace(*prop.LastModified)); err == nil {
					res.lastModified = t.UTC()
					res.hasModified = true
				}
			}
			if prop.ContentType != nil {
				res.contentType = strings.TrimSpace(*prop.ContentType)
			}
			if prop.ContentLength != nil {
				if n, err := strconv.ParseInt(strings.TrimSpace(*prop.ContentLength), 10, 64); err == nil {
					res.contentLength = n
				}
			}
		}
		out = append(out, res)
	}
	return out, nil
}

// propstatOK 判断 "HTTP/1.1 200 OK" 形式的状态行，缺省视为成功。
func propstatOK(status string) bool {
	fields := strings.Fields(status)
	if len(fields) < 2 {
		return true
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return true
	}
	return code >= 200 && code < 300
}
