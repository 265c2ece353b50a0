package skinrestorer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"ely.by/multilogin/internal/db"
	"ely.by/multilogin/internal/mineskin"
	"ely.by/multilogin/internal/yggdrasil"
)

type storeMock struct {
	mock.Mock
}

func (m *storeMock) FindRestorerEntry(ctx context.Context, onlineUuid string) (*db.RestorerEntry, error) {
	args := m.Called(ctx, onlineUuid)
	var result *db.RestorerEntry
	if casted, ok := args.Get(0).(*db.RestorerEntry); ok {
		result = casted
	}

	return result, args.Error(1)
}

func (m *storeMock) UpsertRestorerEntry(ctx context.Context, entry *db.RestorerEntry) error {
	args := m.Called(ctx, entry)

	return args.Error(0)
}

type generatorMock struct {
	mock.Mock
}

func (m *generatorMock) GenerateFromUrl(ctx context.Context, generateReq mineskin.GenerateRequest) (*mineskin.SkinData, error) {
	args := m.Called(ctx, generateReq)
	var result *mineskin.SkinData
	if casted, ok := args.Get(0).(*mineskin.SkinData); ok {
		result = casted
	}

	return result, args.Error(1)
}

type nopEmitter struct {
}

func (*nopEmitter) Emit(name string, args ...any) {
}

type restorerTestSuite struct {
	suite.Suite
	Restorer  *Restorer
	Store     *storeMock
	Generator *generatorMock
}

func (suite *restorerTestSuite) SetupTest() {
	suite.Store = &storeMock{}
	suite.Generator = &generatorMock{}

	var err error
	suite.Restorer, err = New(suite.Store, suite.Generator, &nopEmitter{}, Params{})
	suite.Require().NoError(err)
}

func (suite *restorerTestSuite) TearDownTest() {
	suite.Restorer.Stop()
	suite.Store.AssertExpectations(suite.T())
	suite.Generator.AssertExpectations(suite.T())
}

func newResponse(skinUrl string, model string) *yggdrasil.VerificationResponse {
	var metadata *yggdrasil.SkinTexturesMetadata
	if model != "" {
		metadata = &yggdrasil.SkinTexturesMetadata{Model: model}
	}

	return &yggdrasil.VerificationResponse{
		Id:   "4566e69fc90748ee8d71d7ba5aa00d20",
		Name: "Thinkofdeath",
		Properties: map[string]*yggdrasil.Property{
			"textures": {
				Name: "textures",
				Value: yggdrasil.EncodeTextures(&yggdrasil.TexturesProp{
					Textures: &yggdrasil.TexturesResponse{
						Skin: &yggdrasil.SkinTexturesResponse{
							Url:      skinUrl,
							Metadata: metadata,
						},
					},
				}),
				Signature: "untrusted signature",
			},
		},
	}
}

func (suite *restorerTestSuite) TestNoTexturesProperty() {
	response := &yggdrasil.VerificationResponse{
		Id:         "4566e69fc90748ee8d71d7ba5aa00d20",
		Name:       "Thinkofdeath",
		Properties: map[string]*yggdrasil.Property{},
	}

	suite.Restorer.DoRestore(context.Background(), response)
}

func (suite *restorerTestSuite) TestMalformedTexturesValue() {
	response := newResponse("http://skins.example.com/skin.png", "")
	response.TexturesProperty().Value = "this is not a base64"

	suite.Restorer.DoRestore(context.Background(), response)

	// The response is left unmodified
	suite.Require().Equal("this is not a base64", response.TexturesProperty().Value)
	suite.Require().Equal("untrusted signature", response.TexturesProperty().Signature)
}

func (suite *restorerTestSuite) TestOfficialSkinSource() {
	response := newResponse("http://textures.minecraft.net/texture/74d1e08b0bb7e9f590af27758125bbed", "")

	suite.Restorer.DoRestore(context.Background(), response)
}

func (suite *restorerTestSuite) TestCachedResult() {
	serializedData, _ := json.Marshal(&mineskin.SkinData{Value: "restored value", Signature: "restored signature"})
	suite.Store.On("FindRestorerEntry", mock.Anything, "4566e69fc90748ee8d71d7ba5aa00d20").Once().Return(&db.RestorerEntry{
		OnlineUuid:   "4566e69fc90748ee8d71d7ba5aa00d20",
		SkinUrl:      "http://skins.example.com/skin.png",
		RestorerData: string(serializedData),
	}, nil)

	response := newResponse("http://skins.example.com/skin.png", "")
	suite.Restorer.DoRestore(context.Background(), response)

	suite.Require().Equal("restored value", response.TexturesProperty().Value)
	suite.Require().Equal("restored signature", response.TexturesProperty().Signature)
}

func (suite *restorerTestSuite) TestCachedResultIsReusedWithoutStoreCalls() {
	serializedData, _ := json.Marshal(&mineskin.SkinData{Value: "restored value", Signature: "restored signature"})
	suite.Store.On("FindRestorerEntry", mock.Anything, "4566e69fc90748ee8d71d7ba5aa00d20").Once().Return(&db.RestorerEntry{
		OnlineUuid:   "4566e69fc90748ee8d71d7ba5aa00d20",
		SkinUrl:      "http://skins.example.com/skin.png",
		RestorerData: string(serializedData),
	}, nil)

	first := newResponse("http://skins.example.com/skin.png", "")
	suite.Restorer.DoRestore(context.Background(), first)

	// The second login hits the in-memory layer: FindRestorerEntry is
	// expected exactly once and the generator is never called
	second := newResponse("http://skins.example.com/skin.png", "")
	suite.Restorer.DoRestore(context.Background(), second)

	suite.Require().Equal(first.TexturesProperty().Value, second.TexturesProperty().Value)
	suite.Require().Equal(first.TexturesProperty().Signature, second.TexturesProperty().Signature)
}

func (suite *restorerTestSuite) TestScheduleRestoration() {
	suite.Store.On("FindRestorerEntry", mock.Anything, "4566e69fc90748ee8d71d7ba5aa00d20").Once().Return(nil, nil)
	suite.Generator.On("GenerateFromUrl", mock.Anything, mock.MatchedBy(func(req mineskin.GenerateRequest) bool {
		return req.Url == "http://skins.example.com/skin.png" &&
			req.Variant == "slim" &&
			req.Visibility == mineskin.VisibilityPrivate &&
			len(req.Name) == 6
	})).Once().Return(&mineskin.SkinData{Value: "restored value", Signature: "restored signature"}, nil)
	suite.Store.On("UpsertRestorerEntry", mock.Anything, mock.MatchedBy(func(entry *db.RestorerEntry) bool {
		return entry.OnlineUuid == "4566e69fc90748ee8d71d7ba5aa00d20" &&
			entry.SkinUrl == "http://skins.example.com/skin.png"
	})).Once().Return(nil)

	response := newResponse("http://skins.example.com/skin.png", "slim")
	suite.Restorer.DoRestore(context.Background(), response)

	// The current login proceeds without the corrected skin
	suite.Require().Equal("untrusted signature", response.TexturesProperty().Signature)

	suite.Restorer.Wait()

	// The job has released the in-flight slot
	suite.Require().True(suite.Restorer.inflight.TryBegin("4566e69fc90748ee8d71d7ba5aa00d20"))
	suite.Restorer.inflight.End("4566e69fc90748ee8d71d7ba5aa00d20")
}

func (suite *restorerTestSuite) TestConcurrentRequestIsDropped() {
	release := make(chan time.Time)
	suite.Store.On("FindRestorerEntry", mock.Anything, "4566e69fc90748ee8d71d7ba5aa00d20").Twice().Return(nil, nil)
	suite.Generator.On("GenerateFromUrl", mock.Anything, mock.Anything).Once().WaitUntil(release).Return(nil, &mineskin.TooManyRequestsError{})

	first := newResponse("http://skins.example.com/skin.png", "")
	suite.Restorer.DoRestore(context.Background(), first)

	// The first job is still in flight, so this request is dropped:
	// exactly one external call happens overall
	second := newResponse("http://skins.example.com/skin.png", "")
	suite.Restorer.DoRestore(context.Background(), second)

	close(release)
	suite.Restorer.Wait()
}

func (suite *restorerTestSuite) TestFailedRestorationLeavesCacheUntouched() {
	suite.Store.On("FindRestorerEntry", mock.Anything, "4566e69fc90748ee8d71d7ba5aa00d20").Once().Return(nil, nil)
	suite.Generator.On("GenerateFromUrl", mock.Anything, mock.Anything).Once().Return(nil, &mineskin.ServerError{Status: 500})

	response := newResponse("http://skins.example.com/skin.png", "")
	suite.Restorer.DoRestore(context.Background(), response)
	suite.Restorer.Wait()

	// No UpsertRestorerEntry expectation: persisting would fail the test
}

func TestRestorer(t *testing.T) {
	suite.Run(t, new(restorerTestSuite))
}
