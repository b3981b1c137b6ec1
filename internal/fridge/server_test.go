package fridge

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	ginkgo "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"fridges/internal/metrics"
)

var _ = ginkgo.Describe("Server", func() {
	var (
		store       *mockStore
		scanner     *mockScanner
		generator   *mockGenerator
		service     *Service
		server      *Server
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP)
	}

	ginkgo.BeforeEach(func() {
		store = newMockStore()
		scanner = newMockScanner()
		generator = newMockGenerator()
		service = NewService(store, scanner, generator, nil)
		auth = BasicAuth{}
		server = NewServerWithMux(service, auth, metrics.NewRegistry(), http.NewServeMux())
		setupServer()
	})

	ginkgo.AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
	})

	ginkgo.Describe("handleScan", func() {
		ginkgo.When("the upload succeeds", func() {
			ginkgo.It("should return status OK", func() {
				var b bytes.Buffer
				writer := multipart.NewWriter(&b)
				part, _ := writer.CreateFormFile("file", "receipt.jpg")
				part.Write([]byte("fake image data"))
				writer.Close()

				resp, err := http.Post(ghttpServer.URL()+"/api/fridges/user1/scan", writer.FormDataContentType(), &b)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				resp.Body.Close()
			})

			ginkgo.It("should return the scan result", func() {
				var b bytes.Buffer
				writer := multipart.NewWriter(&b)
				part, _ := writer.CreateFormFile("file", "receipt.jpg")
				part.Write([]byte("fake image data"))
				writer.Close()

				resp, err := http.Post(ghttpServer.URL()+"/api/fridges/user1/scan", writer.FormDataContentType(), &b)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				var result ScanResult
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(json.Unmarshal(body, &result)).NotTo(HaveOccurred())
				Expect(result.Summary.Added).To(ConsistOf("milk", "eggs"))
			})

			ginkgo.It("should save the fridge", func() {
				var b bytes.Buffer
				writer := multipart.NewWriter(&b)
				part, _ := writer.CreateFormFile("file", "receipt.jpg")
				part.Write([]byte("fake image data"))
				writer.Close()

				resp, err := http.Post(ghttpServer.URL()+"/api/fridges/user1/scan", writer.FormDataContentType(), &b)
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(store.docs).To(HaveKey("user1"))
			})
		})

		ginkgo.When("a dry run is requested", func() {
			ginkgo.It("should not save the fridge", func() {
				var b bytes.Buffer
				writer := multipart.NewWriter(&b)
				writer.WriteField("dry_run", "true")
				part, _ := writer.CreateFormFile("file", "receipt.jpg")
				part.Write([]byte("fake image data"))
				writer.Close()

				resp, err := http.Post(ghttpServer.URL()+"/api/fridges/user1/scan", writer.FormDataContentType(), &b)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				resp.Body.Close()
				Expect(store.docs).NotTo(HaveKey("user1"))
			})
		})

		ginkgo.When("every record is rejected", func() {
			ginkgo.BeforeEach(func() {
				scanner.response = `[{"name": "mystery"}]`
			})

			ginkgo.It("should return status Unprocessable Entity", func() {
				var b bytes.Buffer
				writer := multipart.NewWriter(&b)
				part, _ := writer.CreateFormFile("file", "receipt.jpg")
				part.Write([]byte("fake image data"))
				writer.Close()

				resp, err := http.Post(ghttpServer.URL()+"/api/fridges/user1/scan", writer.FormDataContentType(), &b)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
				resp.Body.Close()
			})

			ginkgo.It("should return the rejections in JSON", func() {
				var b bytes.Buffer
				writer := multipart.NewWriter(&b)
				part, _ := writer.CreateFormFile("file", "receipt.jpg")
				part.Write([]byte("fake image data"))
				writer.Close()

				resp, err := http.Post(ghttpServer.URL()+"/api/fridges/user1/scan", writer.FormDataContentType(), &b)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				var response map[string]any
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(json.Unmarshal(body, &response)).NotTo(HaveOccurred())
				Expect(response["error"]).To(ContainSubstring("no valid items"))
				Expect(response["rejected"]).To(HaveLen(1))
			})
		})

		ginkgo.When("the scanner fails", func() {
			ginkgo.BeforeEach(func() {
				scanner.scanErr = errors.New("scan error")
			})

			ginkgo.It("should return status Bad Request", func() {
				var b bytes.Buffer
				writer := multipart.NewWriter(&b)
				part, _ := writer.CreateFormFile("file", "receipt.jpg")
				part.Write([]byte("fake image data"))
				writer.Close()

				resp, err := http.Post(ghttpServer.URL()+"/api/fridges/user1/scan", writer.FormDataContentType(), &b)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
			})

			ginkgo.It("should return the error in JSON", func() {
				var b bytes.Buffer
				writer := multipart.NewWriter(&b)
				part, _ := writer.CreateFormFile("file", "receipt.jpg")
				part.Write([]byte("fake image data"))
				writer.Close()

				resp, err := http.Post(ghttpServer.URL()+"/api/fridges/user1/scan", writer.FormDataContentType(), &b)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				var response map[string]string
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(json.Unmarshal(body, &response)).NotTo(HaveOccurred())
				Expect(response["error"]).To(ContainSubstring("scan error"))
			})
		})

		ginkgo.When("no file is provided", func() {
			ginkgo.It("should return status Bad Request", func() {
				var b bytes.Buffer
				writer := multipart.NewWriter(&b)
				writer.Close()

				resp, err := http.Post(ghttpServer.URL()+"/api/fridges/user1/scan", writer.FormDataContentType(), &b)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
			})

			ginkgo.It("should return error message", func() {
				var b bytes.Buffer
				writer := multipart.NewWriter(&b)
				writer.Close()

				resp, err := http.Post(ghttpServer.URL()+"/api/fridges/user1/scan", writer.FormDataContentType(), &b)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(body)).To(ContainSubstring("file"))
			})
		})
	})

	ginkgo.Describe("handleGetFridge", func() {
		ginkgo.When("the fridge exists", func() {
			ginkgo.BeforeEach(func() {
				store.docs["user1"] = &Document{
					UID:   "user1",
					Items: map[string]Entry{"milk": {Quantity: 3, UnitPrice: 3.50}},
				}
			})

			ginkgo.It("should return status OK", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/fridges/user1")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				resp.Body.Close()
			})

			ginkgo.It("should return the document", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/fridges/user1")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				var doc Document
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(json.Unmarshal(body, &doc)).NotTo(HaveOccurred())
				Expect(doc.UID).To(Equal("user1"))
				Expect(doc.Items["milk"]).To(Equal(Entry{Quantity: 3, UnitPrice: 3.50}))
			})

			ginkgo.It("should set Content-Type to application/json", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/fridges/user1")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
			})
		})

		ginkgo.When("the fridge does not exist", func() {
			ginkgo.It("should return status Not Found", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/fridges/nonexistent")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
				resp.Body.Close()
			})

			ginkgo.It("should return error message", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/fridges/nonexistent")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(body)).To(ContainSubstring("Fridge not found"))
			})
		})

		ginkgo.When("the store fails", func() {
			ginkgo.BeforeEach(func() {
				store.loadErr = errors.New("load error")
			})

			ginkgo.It("should return status Internal Server Error", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/fridges/user1")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
				resp.Body.Close()
			})
		})
	})

	ginkgo.Describe("handleListFridges", func() {
		ginkgo.When("fridges exist", func() {
			ginkgo.BeforeEach(func() {
				doc := NewDocument("user1")
				doc.Items["milk"] = Entry{Quantity: 3, UnitPrice: 3.50}
				store.docs["user1"] = doc
				store.docs["user2"] = NewDocument("user2")
			})

			ginkgo.It("should return status OK", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/fridges")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				resp.Body.Close()
			})

			ginkgo.It("should return one summary per fridge", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/fridges")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				var summaries []fridgeSummary
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(json.Unmarshal(body, &summaries)).NotTo(HaveOccurred())
				Expect(summaries).To(HaveLen(2))
			})
		})

		ginkgo.When("no fridges exist", func() {
			ginkgo.It("should return an empty array", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/fridges")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				var summaries []fridgeSummary
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(json.Unmarshal(body, &summaries)).NotTo(HaveOccurred())
				Expect(summaries).To(BeEmpty())
			})
		})

		ginkgo.When("the store fails", func() {
			ginkgo.BeforeEach(func() {
				store.listErr = errors.New("list error")
			})

			ginkgo.It("should return status Internal Server Error", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/fridges")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
				resp.Body.Close()
			})
		})
	})

	ginkgo.Describe("handleRecipes", func() {
		ginkgo.When("the fridge has items", func() {
			ginkgo.BeforeEach(func() {
				doc := NewDocument("user1")
				doc.Items["milk"] = Entry{Quantity: 3, UnitPrice: 3.50}
				store.docs["user1"] = doc
			})

			ginkgo.It("should return status OK", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/fridges/user1/recipes")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				resp.Body.Close()
			})

			ginkgo.It("should return the recipes", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/fridges/user1/recipes")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				var response map[string]string
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(json.Unmarshal(body, &response)).NotTo(HaveOccurred())
				Expect(response["uid"]).To(Equal("user1"))
				Expect(response["recipes"]).To(ContainSubstring("Scrambled eggs"))
			})
		})

		ginkgo.When("the fridge is empty", func() {
			ginkgo.BeforeEach(func() {
				store.docs["user1"] = NewDocument("user1")
			})

			ginkgo.It("should return status Conflict", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/fridges/user1/recipes")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusConflict))
				resp.Body.Close()
			})

			ginkgo.It("should return error message", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/fridges/user1/recipes")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(body)).To(ContainSubstring("Fridge is empty"))
			})
		})

		ginkgo.When("the fridge does not exist", func() {
			ginkgo.It("should return status Not Found", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/fridges/nonexistent/recipes")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
				resp.Body.Close()
			})
		})
	})

	ginkgo.Describe("metrics endpoint", func() {
		ginkgo.It("should expose scan counters", func() {
			ghttpServer.AppendHandlers(server.ServeHTTP)

			var b bytes.Buffer
			writer := multipart.NewWriter(&b)
			part, _ := writer.CreateFormFile("file", "receipt.jpg")
			part.Write([]byte("fake image data"))
			writer.Close()

			resp, err := http.Post(ghttpServer.URL()+"/api/fridges/user1/scan", writer.FormDataContentType(), &b)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()

			resp, err = http.Get(ghttpServer.URL() + "/metrics")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring("fridges_scans_total 1"))
			Expect(string(body)).To(ContainSubstring("fridges_items_added_total 2"))
		})
	})

	ginkgo.Describe("authenticate", func() {
		var result bool

		ginkgo.When("no auth is configured", func() {
			ginkgo.It("should return true", func() {
				req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/fridges", nil)
				Expect(err).NotTo(HaveOccurred())
				result = server.authenticate(req)
				Expect(result).To(BeTrue())
			})
		})

		ginkgo.When("valid credentials are provided", func() {
			ginkgo.BeforeEach(func() {
				auth = BasicAuth{Username: "user", Password: "pass"}
				server = NewServerWithMux(service, auth, metrics.NewRegistry(), http.NewServeMux())
				setupServer()
			})

			ginkgo.It("should return true", func() {
				req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/fridges", nil)
				Expect(err).NotTo(HaveOccurred())
				credentials := base64.StdEncoding.EncodeToString([]byte("user:pass"))
				req.Header.Set("Authorization", "Basic "+credentials)
				result = server.authenticate(req)
				Expect(result).To(BeTrue())
			})
		})

		ginkgo.When("invalid credentials are provided", func() {
			ginkgo.BeforeEach(func() {
				auth = BasicAuth{Username: "user", Password: "pass"}
				server = NewServerWithMux(service, auth, metrics.NewRegistry(), http.NewServeMux())
				setupServer()
			})

			ginkgo.It("should return false", func() {
				req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/fridges", nil)
				Expect(err).NotTo(HaveOccurred())
				credentials := base64.StdEncoding.EncodeToString([]byte("user:wrong"))
				req.Header.Set("Authorization", "Basic "+credentials)
				result = server.authenticate(req)
				Expect(result).To(BeFalse())
			})
		})

		ginkgo.When("no authorization header is provided", func() {
			ginkgo.BeforeEach(func() {
				auth = BasicAuth{Username: "user", Password: "pass"}
				server = NewServerWithMux(service, auth, metrics.NewRegistry(), http.NewServeMux())
				setupServer()
			})

			ginkgo.It("should return false", func() {
				req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/fridges", nil)
				Expect(err).NotTo(HaveOccurred())
				result = server.authenticate(req)
				Expect(result).To(BeFalse())
			})
		})
	})

	ginkgo.Describe("requireAuth", func() {
		ginkgo.When("the request is unauthorized", func() {
			ginkgo.BeforeEach(func() {
				auth = BasicAuth{Username: "user", Password: "pass"}
				server = NewServerWithMux(service, auth, metrics.NewRegistry(), http.NewServeMux())
				setupServer()
			})

			ginkgo.It("should return status Unauthorized", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/fridges")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
				resp.Body.Close()
			})

			ginkgo.It("should set WWW-Authenticate header", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/fridges")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.Header.Get("WWW-Authenticate")).NotTo(BeEmpty())
			})
		})

		ginkgo.When("the request carries valid credentials", func() {
			ginkgo.BeforeEach(func() {
				auth = BasicAuth{Username: "user", Password: "pass"}
				server = NewServerWithMux(service, auth, metrics.NewRegistry(), http.NewServeMux())
				setupServer()
			})

			ginkgo.It("should let the request through", func() {
				req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/fridges", nil)
				Expect(err).NotTo(HaveOccurred())
				req.SetBasicAuth("user", "pass")
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				resp.Body.Close()
			})
		})
	})
})
