package journal

import (
	"errors"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("BoltStore", func() {
	var (
		dbPath string
		store  *BoltStore
		base   time.Time
	)

	BeforeEach(func() {
		dbPath = filepath.Join(GinkgoT().TempDir(), "journal.db")
		base = time.Date(2026, 3, 2, 7, 30, 0, 0, time.UTC)
		var err error
		store, err = Open(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if store != nil {
			store.Close()
		}
	})

	Describe("Save", func() {
		var (
			rec *Record
			err error
		)

		BeforeEach(func() {
			rec = &Record{
				ID:          "session-1",
				Lot:         "1234567",
				Part:        "AB12X",
				State:       "found",
				CompletedAt: base,
				ResolvedAt:  base.Add(300 * time.Millisecond),
			}
		})

		JustBeforeEach(func() {
			err = store.Save(rec)
		})

		When("the record is valid", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should be readable by ID", func() {
				saved, getErr := store.Get("session-1")
				Expect(getErr).NotTo(HaveOccurred())
				Expect(saved.Lot).To(Equal("1234567"))
				Expect(saved.Part).To(Equal("AB12X"))
				Expect(saved.State).To(Equal("found"))
				Expect(saved.ResolvedAt.Equal(rec.ResolvedAt)).To(BeTrue())
			})
		})

		When("the record has no ID", func() {
			BeforeEach(func() {
				rec.ID = ""
			})

			It("should return an error", func() {
				Expect(err).To(MatchError("record id is required"))
			})
		})

		When("the same session is saved again", func() {
			It("should replace the earlier outcome", func() {
				Expect(err).NotTo(HaveOccurred())
				rec.State = "error"
				rec.Message = "Error 503: busy"
				Expect(store.Save(rec)).To(Succeed())

				saved, getErr := store.Get("session-1")
				Expect(getErr).NotTo(HaveOccurred())
				Expect(saved.State).To(Equal("error"))
				Expect(saved.Message).To(Equal("Error 503: busy"))

				all, listErr := store.List(0)
				Expect(listErr).NotTo(HaveOccurred())
				Expect(all).To(HaveLen(1))
			})
		})
	})

	Describe("Get", func() {
		When("the record does not exist", func() {
			It("should return ErrNotFound", func() {
				rec, err := store.Get("missing")
				Expect(rec).To(BeNil())
				Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
				Expect(err).To(MatchError("capture not found: missing"))
			})
		})
	})

	Describe("List", func() {
		BeforeEach(func() {
			for i, id := range []string{"b", "a", "c"} {
				Expect(store.Save(&Record{
					ID:          id,
					Lot:         "1234567",
					Part:        "AB12X",
					State:       "found",
					CompletedAt: base.Add(time.Duration(i) * time.Minute),
				})).To(Succeed())
			}
		})

		It("should return records newest first", func() {
			records, err := store.List(0)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(3))
			Expect(records[0].ID).To(Equal("c"))
			Expect(records[1].ID).To(Equal("a"))
			Expect(records[2].ID).To(Equal("b"))
		})

		It("should honor the limit", func() {
			records, err := store.List(2)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(2))
			Expect(records[0].ID).To(Equal("c"))
		})
	})

	Describe("reopening", func() {
		It("should keep records across restarts", func() {
			Expect(store.Save(&Record{ID: "persisted", CompletedAt: base})).To(Succeed())
			Expect(store.Close()).To(Succeed())

			var err error
			store, err = Open(dbPath)
			Expect(err).NotTo(HaveOccurred())

			rec, err := store.Get("persisted")
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.CompletedAt.Equal(base)).To(BeTrue())
		})
	})
})
