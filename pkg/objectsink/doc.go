// Package objectsink provides destinations for streamed uploads.
//
// A Sink receives each file as a sequence of (offset, data, last) chunks, the
// same shape the multipart parser and raw-body upload handler produce. Sinks
// that also implement Aborter discard files whose upload failed:
//
//	h := volt.NewUploadHandler(func(req *volt.Request, name string, off int64, data []byte, last bool) error {
//		return sink.Write(req.Context(), name, off, data, last)
//	})
//	h.OnAbort(func(_ *volt.Request, name string) { sink.Abort(name) })
//
// FileSink writes into a local directory. S3Sink assembles each file and
// stores it in an S3-compatible bucket through aws-sdk-go-v2 when the last
// chunk arrives:
//
//	sink, err := objectsink.NewS3(objectsink.Config{
//		Bucket:    "device-uploads",
//		AccessKey: os.Getenv("S3_ACCESS_KEY"),
//		SecretKey: os.Getenv("S3_SECRET_KEY"),
//		Endpoint:  "http://minio.local:9000",
//		PathStyle: true,
//		MaxSize:   2 << 20,
//	})
//
// Uploaded names are reduced to their last path element; chunks that arrive
// out of order fail with ErrOutOfOrder.
package objectsink
